package story

import "sync"

// Response is the body returned by the backend's /story endpoint.
type Response struct {
	OldStory         string  `json:"oldStory"`
	NewStory         string  `json:"newStory"`
	FullStory        string  `json:"fullStory"`
	Audio            *string `json:"audio"`
	FullAudio        *string `json:"fullAudio"`
	SentenceForImage string  `json:"sentenceForImage,omitempty"`
}

// State is the conversation state. It is always replaced as a whole.
type State struct {
	PriorText     string
	LatestSegment string
	FullText      string
	AudioRef      string
	FullAudioRef  string
}

// State converts a response into the state it describes.
func (r Response) State() State {
	s := State{
		PriorText:     r.OldStory,
		LatestSegment: r.NewStory,
		FullText:      r.FullStory,
	}
	if r.Audio != nil {
		s.AudioRef = *r.Audio
	}
	if r.FullAudio != nil {
		s.FullAudioRef = *r.FullAudio
	}
	return s
}

// Empty reports whether no story has been told yet.
func (s State) Empty() bool {
	return s.FullText == "" && s.LatestSegment == ""
}

// UsedWords keeps submitted words in insertion order without duplicates.
type UsedWords struct {
	mu    sync.RWMutex
	words []string
	seen  map[string]struct{}
}

func NewUsedWords() *UsedWords {
	return &UsedWords{seen: make(map[string]struct{})}
}

// Add appends word unless it was already used. It reports whether the word was added.
func (u *UsedWords) Add(word string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.seen[word]; ok {
		return false
	}
	u.seen[word] = struct{}{}
	u.words = append(u.words, word)
	return true
}

func (u *UsedWords) Contains(word string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.seen[word]
	return ok
}

// List returns a copy of the words in submission order.
func (u *UsedWords) List() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]string, len(u.words))
	copy(out, u.words)
	return out
}

func (u *UsedWords) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.words)
}
