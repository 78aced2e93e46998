package feed

import "barsim/internal/domain"

// ATR computes the average true range over the trailing period bars of the
// iterator's window. It reads only bars at or before the current index.
// Returns 0 until at least period+1 bars are available.
func ATR(it *Iterator, period int) float64 {
	bars := it.Window(period + 1)
	if len(bars) < period+1 {
		return 0
	}
	var sum float64
	for i := 1; i < len(bars); i++ {
		sum += trueRange(bars[i], bars[i-1])
	}
	return sum / float64(len(bars)-1)
}

func trueRange(cur, prev domain.Bar) float64 {
	tr := cur.High - cur.Low
	if hc := abs(cur.High - prev.Close); hc > tr {
		tr = hc
	}
	if lc := abs(cur.Low - prev.Close); lc > tr {
		tr = lc
	}
	return tr
}

// VWAP computes the session volume-weighted average price from the bars in
// the window that share the current bar's calendar day.
func VWAP(it *Iterator, maxWindow int) float64 {
	bars := it.Window(maxWindow)
	if len(bars) == 0 {
		return 0
	}
	day := bars[len(bars)-1].Timestamp.Truncate(24 * 3600e9)
	var pv, vol float64
	for _, b := range bars {
		if b.Timestamp.Truncate(24 * 3600e9).Equal(day) {
			pv += b.Typical() * float64(b.Volume)
			vol += float64(b.Volume)
		}
	}
	if vol == 0 {
		return 0
	}
	return pv / vol
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
