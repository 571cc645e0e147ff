package anchor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/zap"
)

// Verifier checks anchor evidence for a sealed manifest digest.
// Evidence is an fs.FS so tests inject in-memory filesystems.
type Verifier struct {
	evidence fs.FS
	logger   *zap.Logger
}

// NewVerifier builds a read-only anchor verifier. logger may be nil.
func NewVerifier(evidence fs.FS, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{evidence: evidence, logger: logger}
}

// AnchorsOK reports whether both required anchors exist and validate for
// the sealed digest: a transparency-log inclusion proof AND a durable
// storage pin report. Either missing or invalid yields false, with one
// reason per failed anchor. A context timeout is "not ok", never "ok".
func (v *Verifier) AnchorsOK(ctx context.Context, sealDigest string) (bool, []string) {
	var reasons []string

	if err := ctx.Err(); err != nil {
		return false, []string{fmt.Sprintf("anchor lookup aborted: %v", err)}
	}

	if err := v.verifyInclusion(sealDigest); err != nil {
		reasons = append(reasons, fmt.Sprintf("transparency log: %v", err))
	}

	if err := ctx.Err(); err != nil {
		return false, append(reasons, fmt.Sprintf("anchor lookup aborted: %v", err))
	}

	if err := v.verifyPin(sealDigest); err != nil {
		reasons = append(reasons, fmt.Sprintf("durable storage: %v", err))
	}

	if len(reasons) > 0 {
		v.logger.Info("anchors rejected",
			zap.String("seal_digest", sealDigest),
			zap.Strings("reasons", reasons))
		return false, reasons
	}

	v.logger.Debug("anchors verified", zap.String("seal_digest", sealDigest))
	return true, nil
}

// verifyInclusion scans the proofs file for an inclusion proof committing
// to sealDigest and validates its audit path.
func (v *Verifier) verifyInclusion(sealDigest string) error {
	f, err := v.evidence.Open(ProofsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("no inclusion proofs at %s", ProofsPath)
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", ProofsPath, err)
	}
	defer f.Close()

	var lastErr error
	found := false

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var proof InclusionProof
		if err := json.Unmarshal(line, &proof); err != nil {
			// A malformed line is skipped, not fatal: other proofs in
			// the file may still validate.
			lastErr = fmt.Errorf("malformed proof line: %w", err)
			continue
		}
		if proof.LeafDigest != sealDigest {
			continue
		}

		found = true
		if err := proof.Verify(sealDigest); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", ProofsPath, err)
	}

	if !found {
		return fmt.Errorf("no inclusion proof for digest %s", sealDigest)
	}
	return fmt.Errorf("inclusion proof invalid: %w", lastErr)
}

// verifyPin checks the pin report covers sealDigest and confirms pinning.
func (v *Verifier) verifyPin(sealDigest string) error {
	data, err := fs.ReadFile(v.evidence, PinReportPath)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("no pin report at %s", PinReportPath)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", PinReportPath, err)
	}

	var report PinReport
	if err := json.Unmarshal(data, &report); err != nil {
		return fmt.Errorf("malformed pin report: %w", err)
	}

	if report.Digest != sealDigest {
		return fmt.Errorf("pin report covers %s, want %s", report.Digest, sealDigest)
	}
	if !report.Pinned {
		return fmt.Errorf("pin report marks %s unpinned", sealDigest)
	}
	return nil
}
