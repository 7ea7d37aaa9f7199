package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/placematch/internal/model"
)

type namedAdapter struct {
	name       string
	configured bool
}

func (n *namedAdapter) Name() string     { return n.name }
func (n *namedAdapter) Configured() bool { return n.configured }
func (n *namedAdapter) SearchByArea(context.Context, string, string, string) (*Page, error) {
	return &Page{}, nil
}
func (n *namedAdapter) SearchByName(context.Context, string, string) ([]model.Record, error) {
	return nil, nil
}
func (n *namedAdapter) GetDetails(context.Context, string) (*model.Record, error) {
	return nil, nil
}

func TestRegistry_PreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&namedAdapter{name: "google", configured: true})
	r.Register(&namedAdapter{name: "yelp", configured: false})
	r.Register(&namedAdapter{name: "foursquare", configured: true})

	assert.Equal(t, []string{"google", "yelp", "foursquare"}, r.AllNames())

	configured := r.Configured()
	require.Len(t, configured, 2)
	assert.Equal(t, "google", configured[0].Name())
	assert.Equal(t, "foursquare", configured[1].Name())
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	r.Register(&namedAdapter{name: "yelp"})

	a, err := r.Get("yelp")
	require.NoError(t, err)
	assert.Equal(t, "yelp", a.Name())

	_, err = r.Get("nope")
	require.Error(t, err)
}

func TestRegistry_RegisterReplacesInPlace(t *testing.T) {
	r := NewRegistry()
	r.Register(&namedAdapter{name: "yelp", configured: false})
	r.Register(&namedAdapter{name: "yelp", configured: true})

	require.Len(t, r.All(), 1)
	a, err := r.Get("yelp")
	require.NoError(t, err)
	assert.True(t, a.Configured())
}
