package trend

import "fmt"

const (
	MarkerUp   = "🔼"
	MarkerDown = "🔻"
	MarkerFlat = "⏺️"
)

// Input carries the current display price together with whatever the cache
// held for the symbol. Absence is explicit: a zero value with the flag unset
// is not the same as a cached zero.
type Input struct {
	Current      float64
	Last         float64
	HasLast      bool
	Yesterday    float64
	HasYesterday bool
}

type Result struct {
	Marker    string
	ChangePct string
}

// Evaluate compares the current price against the previous sample and the
// 24h anchor price. No last price means no marker; no anchor (or an anchor
// of zero) means no percentage.
func Evaluate(in Input) Result {
	var out Result

	if in.HasLast {
		switch {
		case in.Current > in.Last:
			out.Marker = MarkerUp
		case in.Current < in.Last:
			out.Marker = MarkerDown
		default:
			out.Marker = MarkerFlat
		}
	}

	if in.HasYesterday && in.Yesterday != 0 {
		change := (in.Current - in.Yesterday) / in.Yesterday * 100
		out.ChangePct = fmt.Sprintf("%.2f%%", change)
	}

	return out
}
