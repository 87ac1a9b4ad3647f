package app

import "github.com/rubiojr/pinmap/pkg/locstore"

// Event is a user or widget action the controller handles.
type Event interface {
	Kind() string
}

type (
	// Start restores state from the URL, renders the list and initializes the map.
	Start struct{}
	// Reload re-queries and re-renders the list.
	Reload struct{}
	// Select shows one location in the detail panel and on the map.
	Select struct{ ID string }
	// Deselect hides the detail panel and clears the marker.
	Deselect struct{}
	// Remove deletes a location after confirmation.
	Remove struct{ ID string }
	// BeginEdit opens the edit form for an existing location.
	BeginEdit struct{ ID string }
	// ProposeLocation opens the edit form for a clicked map position.
	ProposeLocation struct{ Geo locstore.Geo }
	// SubmitEdit confirms the open edit form. Rate zero means none selected.
	SubmitEdit struct {
		Name string
		Rate int
	}
	// CancelEdit closes the edit form without saving.
	CancelEdit struct{}
	// LocateUser captures the device position.
	LocateUser struct{}
	// SearchAddress geocodes free text and pans there.
	SearchAddress struct{ Text string }
	// SetSort orders the list by one field; an empty field is ignored.
	SetSort struct {
		Field string
		Desc  bool
	}
	// SetFilter narrows the list. MinRate is raw input and is coerced to a number.
	SetFilter struct {
		Text    string
		MinRate string
	}
	// CopyLink puts the shareable URL on the clipboard.
	CopyLink struct{}
	// ShareLink hands the shareable URL to the native share mechanism.
	ShareLink struct{}
	// Navigate replaces the current URL and re-renders from it.
	Navigate struct{ URL string }
)

func (Start) Kind() string           { return "start" }
func (Reload) Kind() string          { return "reload" }
func (Select) Kind() string          { return "select" }
func (Deselect) Kind() string        { return "deselect" }
func (Remove) Kind() string          { return "remove" }
func (BeginEdit) Kind() string       { return "begin-edit" }
func (ProposeLocation) Kind() string { return "propose-location" }
func (SubmitEdit) Kind() string      { return "submit-edit" }
func (CancelEdit) Kind() string      { return "cancel-edit" }
func (LocateUser) Kind() string      { return "locate-user" }
func (SearchAddress) Kind() string   { return "search-address" }
func (SetSort) Kind() string         { return "set-sort" }
func (SetFilter) Kind() string       { return "set-filter" }
func (CopyLink) Kind() string        { return "copy-link" }
func (ShareLink) Kind() string       { return "share-link" }
func (Navigate) Kind() string        { return "navigate" }
