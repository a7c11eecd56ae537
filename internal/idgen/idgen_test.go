package idgen_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"joblifecycle/internal/idgen"
)

func TestNewHasPrefix(t *testing.T) {
	id := idgen.New(idgen.PrefixJob)
	require.True(t, strings.HasPrefix(id, "job_"))
}

func TestNewJobKeyAndUpdateKeySortByCreation(t *testing.T) {
	first := idgen.NewUpdateKey()
	time.Sleep(2 * time.Millisecond)
	second := idgen.NewUpdateKey()
	require.Less(t, first, second)

	firstJob := idgen.NewJobKey()
	time.Sleep(2 * time.Millisecond)
	secondJob := idgen.NewJobKey()
	require.Less(t, firstJob, secondJob)
}

func TestTimeOfRoundTrips(t *testing.T) {
	before := time.Now().Add(-time.Second)
	id := idgen.NewJobKey()
	after := time.Now().Add(time.Second)

	got, err := idgen.TimeOf(id)
	require.NoError(t, err)
	require.True(t, got.After(before))
	require.True(t, got.Before(after))
}

func TestTimeOfRejectsGarbage(t *testing.T) {
	_, err := idgen.TimeOf("not-a-typeid")
	require.Error(t, err)
}
