package decision_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anovik/eventflow/decision"
)

type testEvent struct {
	Amount int
}

func TestShould_Construct_Indecisive_Decision(t *testing.T) {
	d := decision.Pure[string, testEvent]("result")

	assert.True(t, d.Indecisive())
	assert.False(t, d.Accepted())
	assert.False(t, d.Rejected())
	assert.Empty(t, d.Events())
	assert.Empty(t, d.Rejections())
	assert.Equal(t, "result", d.Result())
}

func TestShould_Construct_Accepted_Decision(t *testing.T) {
	d := decision.Accept[string](testEvent{Amount: 1}, testEvent{Amount: 2})

	assert.True(t, d.Accepted())
	assert.False(t, d.Indecisive())
	assert.False(t, d.Rejected())
	assert.Equal(t, []testEvent{{Amount: 1}, {Amount: 2}}, d.Events())
}

func TestShould_Construct_Rejected_Decision(t *testing.T) {
	d := decision.Reject[testEvent, struct{}]("nope", "really")

	assert.True(t, d.Rejected())
	assert.False(t, d.Accepted())
	assert.False(t, d.Indecisive())
	assert.Empty(t, d.Events())
	assert.Equal(t, []string{"nope", "really"}, d.Rejections())
}

func TestShould_Map_Result_Preserving_Events(t *testing.T) {
	d := decision.AcceptReturn[string](10, testEvent{Amount: 1})

	mapped := decision.Map(d, func(a int) int { return a * 2 })

	assert.True(t, mapped.Accepted())
	assert.Equal(t, 20, mapped.Result())
	assert.Equal(t, []testEvent{{Amount: 1}}, mapped.Events())
}

func TestShould_Map_Preserve_Rejection(t *testing.T) {
	d := decision.Reject[testEvent, int]("nope")

	mapped := decision.Map(d, func(a int) int { return a * 2 })

	assert.True(t, mapped.Rejected())
	assert.Equal(t, []string{"nope"}, mapped.Rejections())
}

func TestShould_Short_Circuit_FlatMap_On_Left_Rejection(t *testing.T) {
	d := decision.Reject[testEvent, int]("nope")

	ran := false

	out := decision.FlatMap(d, func(int) decision.Decision[string, testEvent, int] {
		ran = true

		return decision.Pure[string, testEvent](1)
	})

	assert.False(t, ran)
	assert.True(t, out.Rejected())
	assert.Equal(t, []string{"nope"}, out.Rejections())
}

func TestShould_Continue_FlatMap_From_Indecisive(t *testing.T) {
	d := decision.Pure[string, testEvent](5)

	out := decision.FlatMap(d, func(a int) decision.Decision[string, testEvent, int] {
		return decision.AcceptReturn[string](a+1, testEvent{Amount: a})
	})

	assert.True(t, out.Accepted())
	assert.Equal(t, 6, out.Result())
	assert.Equal(t, []testEvent{{Amount: 5}}, out.Events())
}

func TestShould_Concatenate_Events_Across_Accepted_FlatMap(t *testing.T) {
	d := decision.AcceptReturn[string](1, testEvent{Amount: 1})

	out := decision.FlatMap(d, func(a int) decision.Decision[string, testEvent, int] {
		return decision.AcceptReturn[string](a+1, testEvent{Amount: 2})
	})

	assert.True(t, out.Accepted())
	assert.Equal(t, 2, out.Result())
	assert.Equal(t, []testEvent{{Amount: 1}, {Amount: 2}}, out.Events())
}

func TestShould_Keep_Left_Events_When_Right_Is_Indecisive(t *testing.T) {
	d := decision.AcceptReturn[string](1, testEvent{Amount: 1})

	out := decision.FlatMap(d, func(a int) decision.Decision[string, testEvent, string] {
		return decision.Pure[string, testEvent]("done")
	})

	assert.True(t, out.Accepted())
	assert.Equal(t, "done", out.Result())
	assert.Equal(t, []testEvent{{Amount: 1}}, out.Events())
}

func TestShould_Discard_Left_Events_When_Right_Rejects(t *testing.T) {
	d := decision.AcceptReturn[string](1, testEvent{Amount: 1})

	out := decision.FlatMap(d, func(int) decision.Decision[string, testEvent, int] {
		return decision.Reject[testEvent, int]("nope")
	})

	assert.True(t, out.Rejected())
	assert.Empty(t, out.Events())
	assert.Equal(t, []string{"nope"}, out.Rejections())
}

func TestShould_Hold_Left_Identity_Law(t *testing.T) {
	f := func(a int) decision.Decision[string, testEvent, int] {
		return decision.AcceptReturn[string](a*2, testEvent{Amount: a})
	}

	assert.Equal(t, f(21), decision.FlatMap(decision.Pure[string, testEvent](21), f))
}

func TestShould_Hold_Right_Identity_Law(t *testing.T) {
	d := decision.AcceptReturn[string](21, testEvent{Amount: 1})

	assert.Equal(t, d, decision.FlatMap(d, decision.Pure[string, testEvent, int]))
}

func TestShould_Hold_Associativity_Law(t *testing.T) {
	d := decision.AcceptReturn[string](1, testEvent{Amount: 1})

	f := func(a int) decision.Decision[string, testEvent, int] {
		return decision.AcceptReturn[string](a+1, testEvent{Amount: a + 1})
	}

	g := func(a int) decision.Decision[string, testEvent, int] {
		return decision.AcceptReturn[string](a*10, testEvent{Amount: a * 10})
	}

	left := decision.FlatMap(decision.FlatMap(d, f), g)
	right := decision.FlatMap(d, func(a int) decision.Decision[string, testEvent, int] {
		return decision.FlatMap(f(a), g)
	})

	assert.Equal(t, left, right)
}

func TestShould_Sequence_With_Then(t *testing.T) {
	d := decision.Accept[string](testEvent{Amount: 1})

	out := decision.Then(d, decision.Accept[string](testEvent{Amount: 2}))

	assert.Equal(t, []testEvent{{Amount: 1}, {Amount: 2}}, out.Events())
}

func TestShould_Iterate_TailRec_In_Bounded_Stack(t *testing.T) {
	const iterations = 100_000

	out := decision.TailRec(0, func(i int) decision.Decision[string, testEvent, decision.Step[int, int]] {
		if i == iterations {
			return decision.Pure[string, testEvent](decision.Done[int](i))
		}

		return decision.AcceptReturn[string](decision.Continue[int](i+1), testEvent{Amount: i})
	})

	assert.True(t, out.Accepted())
	assert.Equal(t, iterations, out.Result())
	assert.Len(t, out.Events(), iterations)
	assert.Equal(t, testEvent{Amount: 0}, out.Events()[0])
	assert.Equal(t, testEvent{Amount: iterations - 1}, out.Events()[iterations-1])
}

func TestShould_Stop_TailRec_On_Rejection(t *testing.T) {
	out := decision.TailRec(0, func(i int) decision.Decision[string, testEvent, decision.Step[int, int]] {
		if i == 3 {
			return decision.Reject[testEvent, decision.Step[int, int]]("nope")
		}

		return decision.AcceptReturn[string](decision.Continue[int](i+1), testEvent{Amount: i})
	})

	assert.True(t, out.Rejected())
	assert.Empty(t, out.Events())
	assert.Equal(t, []string{"nope"}, out.Rejections())
}
