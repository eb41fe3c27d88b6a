package evidence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ruteri/tee-secret-agent/interfaces"
)

// Collector produces attestation reports bound to a nonce through a ReportInterface.
type Collector struct {
	reports   ReportInterface
	privilege PrivilegeLevelSource
	log       *slog.Logger
}

var _ interfaces.EvidenceCollector = (*Collector)(nil)

// NewCollector creates a collector. A nil privilege source falls back to the
// SEV-SNP sysfs VMPL file.
func NewCollector(reports ReportInterface, privilege PrivilegeLevelSource, log *slog.Logger) *Collector {
	if privilege == nil {
		privilege = FilePrivilegeLevel{Path: DefaultPrivilegeLevelPath}
	}
	return &Collector{
		reports:   reports,
		privilege: privilege,
		log:       log,
	}
}

// Collect runs one report transaction for nonce.
//
// The nonce is validated before any transaction exists. The transaction is
// released on every return path; if releasing fails after an otherwise
// successful collection the report is discarded.
func (c *Collector) Collect(ctx context.Context, rawNonce []byte) (report *interfaces.AttestationReport, err error) {
	nonce, err := interfaces.NewNonce(rawNonce)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scope, err := c.reports.OpenTransaction()
	if err != nil {
		return nil, fmt.Errorf("%w: could not open report transaction: %v", interfaces.ErrEvidenceUnavailable, err)
	}
	log := c.log.With("scope", scope)
	log.Debug("Opened report transaction")

	defer func() {
		closeErr := c.reports.CloseTransaction(scope)
		if closeErr == nil {
			log.Debug("Released report transaction")
			return
		}
		if err == nil {
			report = nil
			err = fmt.Errorf("%w: could not release report transaction: %v", interfaces.ErrEvidenceUnavailable, closeErr)
			return
		}
		log.Warn("Could not release report transaction", "err", closeErr)
	}()

	providerID, err := c.reports.ReadSlot(scope, SlotProvider)
	if err != nil {
		return nil, fmt.Errorf("%w: could not read %s: %v", interfaces.ErrEvidenceUnavailable, SlotProvider, err)
	}

	p, err := platformForProvider(string(providerID))
	if err != nil {
		return nil, err
	}
	log = log.With("tee_type", p.kind)

	for _, s := range p.steps {
		if err := s.run(c, scope, nonce); err != nil {
			log.Debug("Report step failed", "step", s.name, "err", err)
			return nil, err
		}
	}

	raw, err := c.reports.ReadSlot(scope, SlotOutblob)
	if err != nil {
		return nil, fmt.Errorf("%w: could not read %s: %v", interfaces.ErrEvidenceUnavailable, SlotOutblob, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: platform returned an empty report", interfaces.ErrEvidenceUnavailable)
	}

	log.Info("Collected attestation report", "size", len(raw))

	return &interfaces.AttestationReport{
		Raw:  raw,
		Kind: p.kind,
	}, nil
}
