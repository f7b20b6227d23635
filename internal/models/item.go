package models

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusCollecting ItemStatus = "collecting"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

// ItemKey addresses an item inside the category/letter/item hierarchy.
type ItemKey struct {
	Category string `json:"category"`
	Letter   string `json:"letter"`
	Name     string `json:"name"`
}

// NewItemKey derives the letter from the first rune of name.
func NewItemKey(category, name string) ItemKey {
	name = strings.TrimSpace(name)
	letter := ""
	if r, _ := utf8.DecodeRuneInString(name); r != utf8.RuneError {
		letter = string(unicode.ToUpper(r))
	}
	return ItemKey{Category: strings.TrimSpace(category), Letter: letter, Name: name}
}

func (k ItemKey) String() string {
	return k.Category + "/" + k.Letter + "/" + k.Name
}

func (k ItemKey) Validate() error {
	if k.Category == "" || k.Name == "" {
		return fmt.Errorf("item key requires category and name: %q", k.String())
	}
	if utf8.RuneCountInString(k.Letter) != 1 {
		return fmt.Errorf("item key letter must be a single character: %q", k.Letter)
	}
	return nil
}

// ParseItemKey parses the "category/L/name" form produced by String.
func ParseItemKey(s string) (ItemKey, error) {
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 {
		return ItemKey{}, fmt.Errorf("malformed item key %q", s)
	}
	k := ItemKey{Category: parts[0], Letter: parts[1], Name: parts[2]}
	return k, k.Validate()
}

// Item is one vocabulary entry with its candidate images.
type Item struct {
	Key         ItemKey             `json:"key"`
	DisplayName string              `json:"displayName"`
	Images      []ImageCandidate    `json:"images"`
	Progress    *CollectionProgress `json:"collectionProgress,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// Status is the progress status, empty when collection never started.
func (it *Item) Status() ItemStatus {
	if it.Progress == nil {
		return ""
	}
	return it.Progress.Status
}

func (it *Item) ImageIndex(id string) int {
	for i := range it.Images {
		if it.Images[i].ID == id {
			return i
		}
	}
	return -1
}

// PrimaryIndex returns the index of the approved primary image or -1.
func (it *Item) PrimaryIndex() int {
	for i := range it.Images {
		if it.Images[i].IsPrimary && it.Images[i].Status == CandidateApproved {
			return i
		}
	}
	return -1
}

func (it *Item) CountByStatus(status CandidateStatus) int {
	n := 0
	for i := range it.Images {
		if it.Images[i].Status == status {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so callers never alias stored state.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	cp := *it
	if it.Images != nil {
		cp.Images = make([]ImageCandidate, len(it.Images))
		for i := range it.Images {
			cp.Images[i] = it.Images[i].Clone()
		}
	}
	cp.Progress = it.Progress.Clone()
	return &cp
}
