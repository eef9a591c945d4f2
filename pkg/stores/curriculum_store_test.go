package stores

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studypet-hub/studypet-hub/pkg/backend/backendtest"
	"github.com/studypet-hub/studypet-hub/pkg/domain"
)

const curriculumRowsJSON = `[
	{"id": "grade-5", "parent_id": "", "kind": "grade_level", "name": "Grade 5", "position": 5},
	{"id": "reading", "parent_id": "grade-5", "kind": "subject", "name": "Reading", "position": 1},
	{"id": "math", "parent_id": "grade-5", "kind": "subject", "name": "Mathematics", "position": 2},
	{"id": "fractions", "parent_id": "math", "kind": "topic", "name": "Fractions", "position": 1},
	{"id": "adding-fractions", "parent_id": "fractions", "kind": "sub_topic", "name": "Adding Fractions", "position": 1}
]`

func newCurriculumStore(fake *backendtest.Fake, clock *fakeClock) *CurriculumStore {
	return NewCurriculumStore(CurriculumStoreConfig{Querier: fake, Clock: clock.Now})
}

func TestCurriculumResolveNames(t *testing.T) {
	fake := backendtest.New()
	fake.QueueRows(curriculumTable, curriculumRowsJSON)
	store := newCurriculumStore(fake, newFakeClock())

	names, err := store.ResolveNames(context.Background(), domain.CurriculumPath{
		GradeLevelID: "grade-5",
		SubjectID:    "math",
		TopicID:      "fractions",
		SubTopicID:   "adding-fractions",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CurriculumNames{
		GradeLevel: "Grade 5",
		Subject:    "Mathematics",
		Topic:      "Fractions",
		SubTopic:   "Adding Fractions",
	}, names)

	// A second resolve is answered from the cached hierarchy.
	_, err = store.ResolveNames(context.Background(), domain.CurriculumPath{GradeLevelID: "grade-5"})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.SelectCount(curriculumTable))
}

func TestCurriculumResolveNamesUnknownLevels(t *testing.T) {
	fake := backendtest.New()
	fake.QueueRows(curriculumTable, curriculumRowsJSON)
	store := newCurriculumStore(fake, newFakeClock())

	names, err := store.ResolveNames(context.Background(), domain.CurriculumPath{
		GradeLevelID: "grade-5",
		SubjectID:    "deleted-subject",
		TopicID:      "",
		SubTopicID:   "also-gone",
	})
	require.NoError(t, err, "unresolved names are a display concern, not an error")
	assert.Equal(t, "Grade 5", names.GradeLevel)
	assert.Equal(t, domain.UnknownCurriculumName, names.Subject)
	assert.Equal(t, domain.UnknownCurriculumName, names.Topic)
	assert.Equal(t, domain.UnknownCurriculumName, names.SubTopic)
}

func TestCurriculumResolveNamesBackendError(t *testing.T) {
	fake := backendtest.New()
	boom := errors.New("backend down")
	fake.QueueSelectError(curriculumTable, boom)
	store := newCurriculumStore(fake, newFakeClock())

	names, err := store.ResolveNames(context.Background(), domain.CurriculumPath{GradeLevelID: "grade-5"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, domain.UnknownCurriculumNames(), names)
}

func TestCurriculumChildrenOrderedByPosition(t *testing.T) {
	fake := backendtest.New()
	fake.QueueRows(curriculumTable, curriculumRowsJSON)
	store := newCurriculumStore(fake, newFakeClock())

	subjects, err := store.Children(context.Background(), "grade-5")
	require.NoError(t, err)
	require.Len(t, subjects, 2)
	assert.Equal(t, "Reading", subjects[0].Name)
	assert.Equal(t, "Mathematics", subjects[1].Name)

	roots, err := store.Children(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, domain.CurriculumGradeLevel, roots[0].Kind)
}

func TestCurriculumNodeLookup(t *testing.T) {
	fake := backendtest.New()
	fake.QueueRows(curriculumTable, curriculumRowsJSON)
	store := newCurriculumStore(fake, newFakeClock())

	n, ok, err := store.Node(context.Background(), "math")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Mathematics", n.Name)

	_, ok, err = store.Node(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}
