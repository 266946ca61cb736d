package engine

import iface "OnnxInspector/interface"

// DefaultAnomalyThreshold applies to single-score models.
const DefaultAnomalyThreshold float32 = 0.8

// Interpret maps raw model output to a verdict.
//
// Two or more values are read as [okScore, ngScore, ...] and NG wins only on a
// strict inequality. A single value is an anomaly score compared against
// threshold. Anything else is VerdictError.
func Interpret(out []float32, threshold float32) iface.Verdict {
	switch {
	case len(out) >= 2:
		if out[1] > out[0] {
			return iface.VerdictNG
		}
		return iface.VerdictOK
	case len(out) == 1:
		if out[0] > threshold {
			return iface.VerdictNG
		}
		return iface.VerdictOK
	default:
		return iface.VerdictError
	}
}
