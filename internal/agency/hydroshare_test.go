package agency

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sos-priors/internal/config"
)

const hydroShareFixture = `reach_id,node_id,sword_version,x,y,date,Q
74100300011,741003000110011,16,-60.1,-3.2,01-02-2020,250.5
74100300011,741003000110011,15,-60.1,-3.2,02-02-2020,260.0
74100300011,741003000110011,16.0,-60.1,-3.2,03-02-2020,270.0
74100300011,741003000110011,16,-60.1,-3.2,2020-02-04,1
`

func TestHydroShare_Fetch(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collection/gauge-77.csv", r.URL.Path)
		_, _ = w.Write([]byte(hydroShareFixture))
	})

	a := NewHydroShare(config.HydroShareConfig{URL: srv.URL + "/collection/{site}.csv"}, "16", testOpener())
	batch, err := a.Fetch(context.Background(), testSite("gauge-77"))
	require.NoError(t, err)

	require.Len(t, batch.Observations, 3)
	assert.Len(t, batch.ParseErrors, 1)
	assert.False(t, batch.Observations[0].Rejected)
	assert.Equal(t, 1, batch.Observations[0].Timestamp.Day())
	assert.Equal(t, 2, int(batch.Observations[0].Timestamp.Month()))
	assert.True(t, batch.Observations[1].Rejected, "other SWORD release")
	assert.False(t, batch.Observations[2].Rejected)
}

func TestHydroShare_NotConfigured(t *testing.T) {
	_, err := NewHydroShare(config.HydroShareConfig{}, "16", testOpener()).Fetch(context.Background(), testSite("x"))
	require.Error(t, err)
}
