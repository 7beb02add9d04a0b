package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	noopRecorder
	db       map[string]int
	degraded int
}

func (c *countingRecorder) IncDBOpTotal(op string, success bool) {
	if success {
		c.db[op]++
	}
}
func (c *countingRecorder) IncMemoryContextDegraded() { c.degraded++ }

func TestTimeOp_UsesRecorder(t *testing.T) {
	rec := &countingRecorder{db: map[string]int{}}
	SetRecorder(rec)
	t.Cleanup(func() { SetRecorder(nil) })

	done := TimeOp("db_find_chunk")
	done(true)
	Default().IncMemoryContextDegraded()

	assert.Equal(t, 1, rec.db["db_find_chunk"])
	assert.Equal(t, 1, rec.degraded)
}

func TestEnablePrometheus_ExposesSeries(t *testing.T) {
	h := EnablePrometheus()
	t.Cleanup(func() { SetRecorder(nil) })

	TimeOp("db_create_entity")(true)
	TimeLLM("fake")(false)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `db_ops_total{op="db_create_entity",success="true"} 1`)
	assert.Contains(t, string(body), `llm_calls_total{provider="fake",success="false"} 1`)
}
