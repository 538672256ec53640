// Package replay feeds recorded depth and trade records through the engine synchronously
// and writes one JSON frame per line.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"market-signals-go/infrastructure/logger"
	"market-signals-go/internal/engine"
	"market-signals-go/market"
)

const maxLine = 1 << 20

// Record is one input line. Exactly one of Depth or Trade is set.
type Record struct {
	Depth *market.DepthUpdate `json:"depth,omitempty"`
	Trade *market.Trade       `json:"trade,omitempty"`
}

// Stats 汇总一次回放。
type Stats struct {
	Lines     int `json:"lines"`
	Applied   int `json:"applied"`
	Rejected  int `json:"rejected"`
	Trades    int `json:"trades"`
	Frames    int `json:"frames"`
	Malformed int `json:"malformed"`
}

// Run reads records from in until EOF or ctx is done. Malformed lines and rejected updates
// are counted and skipped; only I/O errors stop the replay.
func Run(ctx context.Context, in io.Reader, out io.Writer, eng *engine.Engine, log *logger.Logger) (Stats, error) {
	var st Stats
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	enc := json.NewEncoder(out)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		st.Lines++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil || (rec.Depth == nil) == (rec.Trade == nil) {
			st.Malformed++
			log.Warn("malformed replay line", zap.Int("line", st.Lines), zap.Error(err))
			continue
		}

		if rec.Trade != nil {
			if err := eng.ProcessTrade(*rec.Trade); err != nil {
				st.Rejected++
				continue
			}
			st.Trades++
			continue
		}

		f, ok, err := eng.Process(*rec.Depth)
		if err != nil {
			st.Rejected++
			continue
		}
		st.Applied++
		if !ok {
			continue
		}
		st.Frames++
		if err := enc.Encode(f); err != nil {
			return st, fmt.Errorf("write frame: %w", err)
		}
	}
	if err := sc.Err(); err != nil {
		return st, fmt.Errorf("read input: %w", err)
	}
	return st, nil
}
