package dataspace

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dataspace/internal/bag"
	"github.com/roach88/dataspace/internal/ir"
)

// drain runs rounds until the dataspace has nothing left to do.
func drain(t *testing.T, ds *Dataspace) {
	t.Helper()
	for i := 0; ds.RunScripts(); i++ {
		require.Less(t, i, 100000, "dataspace did not quiesce")
	}
}

func tag(name string) ir.IRValue {
	return ir.Rec("Tag", ir.IRString(name))
}

// logTracer appends Tag retractions to a shared log, so tests can
// interleave them with stop handler output.
type logTracer struct {
	NopTracer
	log *[]string
}

func (l logTracer) Patch(_ string, v ir.IRValue, tr bag.Transition) {
	rec, ok := v.(ir.IRRecord)
	if !ok || rec.Label != "Tag" || tr != bag.PresentToAbsent {
		return
	}
	*l.log = append(*l.log, "retract "+string(rec.Fields[0].(ir.IRString)))
}
