package sessions_test

import (
	"fmt"
	"testing"

	"github.com/liammagee/six-authors-in-search-of-a-character/internal/sessions"
	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var assistant = models.Persona{ID: "default", SystemPrompt: "You are a helpful Discord bot assistant."}

func TestEnsure_SeedsOnce(t *testing.T) {
	s := sessions.NewStore()
	key := models.ConversationKey("chan-1")

	msgs := s.Ensure(key, assistant)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.SystemMessage(assistant.SystemPrompt), msgs[0])

	s.Append(key, models.UserMessage("hi"))
	again := s.Ensure(key, models.Persona{SystemPrompt: "ignored"})
	require.Len(t, again, 2)
	assert.Equal(t, assistant.SystemPrompt, again[0].Content, "Ensure must not reseed an existing buffer")
}

func TestAppend_LengthIsCapped(t *testing.T) {
	for _, n := range []int{0, 1, 19, 20, 21, 50} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			s := sessions.NewStore()
			key := models.ConversationKey("k")
			s.Ensure(key, assistant)
			for i := 0; i < n; i++ {
				s.Append(key, models.UserMessage(fmt.Sprintf("m%d", i)))
			}
			assert.Equal(t, min(n+1, sessions.MaxMessages), s.Len(key))
		})
	}
}

func TestAppend_RetentionKeepsSystemAndNewest(t *testing.T) {
	s := sessions.NewStore()
	key := models.ConversationKey("k")
	s.Ensure(key, assistant)

	for i := 0; i < 25; i++ {
		s.Append(key, models.UserMessage(fmt.Sprintf("q%d", i)))
		s.Append(key, models.AssistantMessage(fmt.Sprintf("a%d", i)))
	}

	msgs := s.Snapshot(key)
	require.Len(t, msgs, 21)
	assert.Equal(t, models.SystemMessage(assistant.SystemPrompt), msgs[0])
	assert.Equal(t, "q15", msgs[1].Content)
	assert.Equal(t, "a24", msgs[20].Content)
}

func TestAppend_UnknownKeyStartsWithSystem(t *testing.T) {
	s := sessions.NewStore()
	key := models.ConversationKey("fresh")

	s.Append(key, models.UserMessage("hello"))
	msgs := s.Snapshot(key)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleSystem, msgs[0].Role)
}

func TestReset(t *testing.T) {
	s := sessions.NewStore()
	key := models.ConversationKey("k")
	s.Ensure(key, assistant)
	s.Append(key, models.UserMessage("a"), models.AssistantMessage("b"))

	pirate := models.Persona{ID: "pirate", SystemPrompt: "Arr."}
	s.Reset(key, pirate)

	msgs := s.Snapshot(key)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Arr.", msgs[0].Content)

	s.ResetPrompt(key, "raw prompt")
	prompt, ok := s.SystemPrompt(key)
	assert.True(t, ok)
	assert.Equal(t, "raw prompt", prompt)
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := sessions.NewStore()
	key := models.ConversationKey("k")
	s.Ensure(key, assistant)

	snap := s.Snapshot(key)
	snap[0].Content = "mutated"

	msgs := s.Snapshot(key)
	require.Len(t, msgs, 1)
	assert.Equal(t, assistant.SystemPrompt, msgs[0].Content)
	assert.Nil(t, s.Snapshot("missing"))
}

func TestAppendAndSnapshot(t *testing.T) {
	s := sessions.NewStore()
	key := models.ConversationKey("k")
	s.Ensure(key, assistant)

	snap := s.AppendAndSnapshot(key, models.UserMessage("q"))
	require.Len(t, snap, 2)
	assert.Equal(t, "q", snap[1].Content)
}

func TestConcurrentAppends_DistinctKeysAreIsolated(t *testing.T) {
	s := sessions.NewStore()
	keys := []models.ConversationKey{"a", "b"}
	for _, k := range keys {
		s.Ensure(k, assistant)
	}

	var g errgroup.Group
	for _, k := range keys {
		k := k
		g.Go(func() error {
			for i := 0; i < 15; i++ {
				s.Append(k, models.UserMessage(string(k)))
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, k := range keys {
		msgs := s.Snapshot(k)
		require.Len(t, msgs, 16)
		for _, m := range msgs[1:] {
			assert.Equal(t, string(k), m.Content, "key %s observed a foreign message", k)
		}
	}
	assert.Equal(t, keys, s.Keys())
}

func TestConcurrentAppends_SameKeyLosesNothing(t *testing.T) {
	s := sessions.NewStore()
	key := models.ConversationKey("shared")
	s.Ensure(key, assistant)

	const workers, perWorker = 4, 5 // 20 appends: exactly at the cap
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				s.Append(key, models.UserMessage(fmt.Sprintf("w%d-%d", w, i)))
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	msgs := s.Snapshot(key)
	require.Len(t, msgs, workers*perWorker+1)
	seen := map[string]bool{}
	for _, m := range msgs[1:] {
		seen[m.Content] = true
	}
	assert.Len(t, seen, workers*perWorker)

	// Past the cap, the length stays at MaxMessages.
	var more errgroup.Group
	for w := 0; w < workers; w++ {
		more.Go(func() error {
			for i := 0; i < 10; i++ {
				s.Append(key, models.UserMessage("more"))
			}
			return nil
		})
	}
	require.NoError(t, more.Wait())
	assert.Equal(t, sessions.MaxMessages, s.Len(key))
	assert.Equal(t, assistant.SystemPrompt, s.Snapshot(key)[0].Content)
}
