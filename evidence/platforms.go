package evidence

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ruteri/tee-secret-agent/interfaces"
)

// step is one platform-specific configuration write performed before the report is read.
type step struct {
	name string
	run  func(c *Collector, scope string, nonce interfaces.Nonce) error
}

// platform ties a report provider identifier to its TEE kind and step list.
type platform struct {
	provider string
	kind     interfaces.TeeKind
	steps    []step
}

var submitNonce = step{
	name: "submit-nonce",
	run: func(c *Collector, scope string, nonce interfaces.Nonce) error {
		if err := c.reports.WriteSlot(scope, SlotInblob, nonce[:]); err != nil {
			return fmt.Errorf("%w: could not write %s: %v", interfaces.ErrEvidenceUnavailable, SlotInblob, err)
		}
		return nil
	},
}

var configurePrivilegeLevel = step{
	name: "configure-privilege-level",
	run: func(c *Collector, scope string, _ interfaces.Nonce) error {
		level, err := c.privilege.PrivilegeLevel()
		if err != nil {
			return fmt.Errorf("%w: %v", interfaces.ErrEvidenceUnavailable, err)
		}

		if err := c.reports.WriteSlot(scope, SlotPrivlevel, []byte(strconv.FormatUint(uint64(level), 10))); err != nil {
			return fmt.Errorf("%w: could not write %s: %v", interfaces.ErrEvidenceUnavailable, SlotPrivlevel, err)
		}

		c.log.Debug("Configured report privilege level", "privlevel", level)
		return nil
	},
}

var platforms = []platform{
	{
		provider: "sev_guest",
		kind:     interfaces.TeeKindSEVSNP,
		steps:    []step{submitNonce, configurePrivilegeLevel},
	},
	{
		provider: "tdx_guest",
		kind:     interfaces.TeeKindTDX,
		steps:    []step{submitNonce},
	},
}

func platformForProvider(provider string) (platform, error) {
	provider = strings.TrimSpace(provider)
	for _, p := range platforms {
		if p.provider == provider {
			return p, nil
		}
	}
	return platform{}, fmt.Errorf("%w: report provider %q", interfaces.ErrUnsupportedPlatform, provider)
}

// SupportedKinds lists the TEE kinds evidence can be collected for.
func SupportedKinds() []interfaces.TeeKind {
	kinds := make([]interfaces.TeeKind, 0, len(platforms))
	for _, p := range platforms {
		kinds = append(kinds, p.kind)
	}
	return kinds
}
