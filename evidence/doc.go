/*
Package evidence collects hardware attestation reports through the Linux
configfs-tsm report interface.

A report is produced inside a transaction: a freshly created directory under
/sys/kernel/config/tsm/report. The collector reads the provider slot to learn
which TEE it runs on, writes the platform's configuration slots (the nonce into
inblob and, on AMD SEV-SNP, the current VMPL into privlevel), reads outblob and
finally removes the directory.

Supported providers:

	sev_guest -> amd-sev-snp   (inblob, privlevel)
	tdx_guest -> intel-tdx     (inblob)

Usage:

	collector := evidence.NewCollector(
		evidence.NewConfigFSReportInterface(evidence.DefaultReportRoot),
		evidence.FilePrivilegeLevel{Path: evidence.DefaultPrivilegeLevelPath},
		logger,
	)
	report, err := collector.Collect(ctx, nonce)

MemoryReportInterface can stand in for the kernel interface in tests.
*/
package evidence
