package model

// MailboxAttribute is a LIST/LSUB response flag describing mailbox
// structure or RFC 6154 special-use role.
type MailboxAttribute string

const (
	AttrNoinferiors  MailboxAttribute = "\\Noinferiors"
	AttrNoselect     MailboxAttribute = "\\Noselect"
	AttrMarked       MailboxAttribute = "\\Marked"
	AttrUnmarked     MailboxAttribute = "\\Unmarked"
	AttrHasChildren  MailboxAttribute = "\\HasChildren"
	AttrHasNoChildren MailboxAttribute = "\\HasNoChildren"

	AttrInbox   MailboxAttribute = "\\Inbox"
	AttrSent    MailboxAttribute = "\\Sent"
	AttrDrafts  MailboxAttribute = "\\Drafts"
	AttrTrash   MailboxAttribute = "\\Trash"
	AttrJunk    MailboxAttribute = "\\Junk"
	AttrArchive MailboxAttribute = "\\Archive"
	AttrFlagged MailboxAttribute = "\\Flagged"
)

// MailboxInfo is the immutable value object produced by LIST/LSUB (spec
// §3 Mailbox.Info).
type MailboxInfo struct {
	Name       string
	Delimiter  string
	Attributes map[MailboxAttribute]struct{}
}

// HasAttribute reports whether a is present on the mailbox.
func (m MailboxInfo) HasAttribute(a MailboxAttribute) bool {
	_, ok := m.Attributes[a]
	return ok
}

// SpecialUse returns the RFC 6154 special-use attribute for the mailbox,
// if any, preferring the most specific role.
func (m MailboxInfo) SpecialUse() (MailboxAttribute, bool) {
	for _, a := range []MailboxAttribute{AttrInbox, AttrSent, AttrDrafts, AttrTrash, AttrJunk, AttrArchive, AttrFlagged} {
		if m.HasAttribute(a) {
			return a, true
		}
	}
	return "", false
}

// MailboxStatus is produced by SELECT/EXAMINE (spec §3 Mailbox.Status).
// All numeric fields are non-negative; UIDNext is > 0 when set.
type MailboxStatus struct {
	Exists         uint32
	Recent         uint32
	UIDValidity    uint32
	UIDNext        uint32
	FirstUnseen    uint32 // 0 when the server sent no OK [UNSEEN n]
	UnseenCount    uint32 // derived when absent, see DeriveUnseenCount
	PermanentFlags []Flag
	AvailableFlags []Flag
	ReadOnly       bool
}

// DeriveUnseenCount fills UnseenCount from FirstUnseen and Exists per the
// spec invariant: exists - first_unseen + 1 when first_unseen > 0 and the
// server did not report an explicit UNSEEN count. Call after assembling
// the status from untagged responses; it is a no-op if UnseenCount is
// already set or FirstUnseen is zero.
func (s *MailboxStatus) DeriveUnseenCount() {
	if s.UnseenCount != 0 || s.FirstUnseen == 0 {
		return
	}
	if s.Exists >= s.FirstUnseen {
		s.UnseenCount = s.Exists - s.FirstUnseen + 1
	}
}
