package patients

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var known = model.Patient{
	ID: "P007", FirstName: "Anaya", LastName: "Reddy", DOB: "1991-04-12",
	Email: "anaya.reddy@example.com", Phone: "9123456789",
	Insurance: model.Insurance{Carrier: "Aetna", MemberID: "M1", GroupID: "G1"},
	Returning: true,
}

func TestLookupMatchesNameTokensAndDOB(t *testing.T) {
	repo := NewMemoryRepository(known)
	now := time.Unix(1700000000, 0)

	p, found, err := Lookup(context.Background(), repo, LookupRequest{FullName: "  anaya   K  REDDY ", DOB: "1991-04-12"}, now)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "P007", p.ID)

	p, found, err = Lookup(context.Background(), repo, LookupRequest{FullName: "anaya reddy", DOB: "1991-04-13", Doctor: "Dr. Priya Rao", Location: "Whitefield"}, now)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "TMP-1700000000", p.ID)
	assert.Equal(t, "Anaya", p.FirstName)
	assert.Equal(t, "Reddy", p.LastName)
	assert.Equal(t, "Dr. Priya Rao", p.PreferredDoctor)
	assert.False(t, p.Returning)
}

func TestLookupNewPatientKeepsMultibyteNames(t *testing.T) {
	p, found, err := Lookup(context.Background(), NewMemoryRepository(), LookupRequest{FullName: "élodie ørsted", DOB: "1990-01-01"}, time.Unix(1700000000, 0))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "Élodie", p.FirstName)
	assert.Equal(t, "Ørsted", p.LastName)
}

func TestLookupValidation(t *testing.T) {
	repo := NewMemoryRepository()
	_, _, err := Lookup(context.Background(), repo, LookupRequest{FullName: "", DOB: "1991-04-12"}, time.Now())
	require.ErrorIs(t, err, ErrInvalidLookup)
	_, _, err = Lookup(context.Background(), repo, LookupRequest{FullName: "A B", DOB: "12/04/1991"}, time.Now())
	require.ErrorIs(t, err, ErrInvalidLookup)
}

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patients.csv")
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []model.Patient{known}))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	all, err := NewCSVRepository(path).All(context.Background())
	require.NoError(t, err)
	require.Equal(t, []model.Patient{known}, all)

	missing, err := NewCSVRepository(filepath.Join(t.TempDir(), "none.csv")).All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, missing)
}
