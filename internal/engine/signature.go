package engine

import (
	"github.com/transflow/riskd/internal/profile"
)

// SignatureEvaluator checks the device and network identity of a
// transaction against what the customer has used before. A customer with
// no recorded devices never flags: every device would be "new".
type SignatureEvaluator struct{}

// NewSignatureEvaluator creates a signature evaluator.
func NewSignatureEvaluator() *SignatureEvaluator {
	return &SignatureEvaluator{}
}

// originMinSamples is how much network history is needed before an
// origin mismatch is meaningful.
const originMinSamples = 5

func (e *SignatureEvaluator) Name() string { return EvaluatorSignature }

func (e *SignatureEvaluator) Evaluate(req *TransactionRequest, snap *profile.Profile) []string {
	var flags []string

	if fp := req.Device.Fingerprint(); fp != "" && len(snap.Devices) > 0 {
		if !snap.KnownDevice(fp) {
			flags = append(flags, FlagUnknownDevice)
		}
	}

	if origin := req.Device.NetworkOrigin(); origin != "" {
		if predominant, n := snap.PredominantOrigin(); n >= originMinSamples && origin != predominant {
			flags = append(flags, FlagOriginMismatch)
		}
	}

	return flags
}
