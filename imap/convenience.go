package imap

import (
	"context"
	"strings"

	"github.com/kestrelmail/goimapcore/model"
)

// FolderKind discriminates the special-purpose mailboxes the convenience
// operations resolve against.
type FolderKind int

const (
	FolderTrash FolderKind = iota
	FolderArchive
	FolderJunk
	FolderDrafts
	FolderSent
)

func (k FolderKind) String() string {
	switch k {
	case FolderTrash:
		return "Trash"
	case FolderArchive:
		return "Archive"
	case FolderJunk:
		return "Junk"
	case FolderDrafts:
		return "Drafts"
	case FolderSent:
		return "Sent"
	default:
		return "Unknown"
	}
}

func (k FolderKind) attribute() model.MailboxAttribute {
	switch k {
	case FolderTrash:
		return model.AttrTrash
	case FolderArchive:
		return model.AttrArchive
	case FolderJunk:
		return model.AttrJunk
	case FolderDrafts:
		return model.AttrDrafts
	case FolderSent:
		return model.AttrSent
	default:
		return ""
	}
}

// nameHeuristics lists case-insensitive exact-match fallbacks tried when
// no LIST entry carries the RFC 6154 special-use attribute, including
// Gmail's bracketed "[Gmail]/..." folder names (grounded on the
// teacher's imapFolderMap, which solves the identical Gmail-naming
// problem for local path mapping rather than destination resolution).
var nameHeuristics = map[FolderKind][]string{
	FolderTrash:   {"trash", "deleted items", "deleted", "[gmail]/trash", "[google mail]/trash"},
	FolderArchive: {"archive", "all mail", "[gmail]/all mail", "[google mail]/all mail"},
	FolderJunk:    {"junk", "spam", "[gmail]/spam", "[google mail]/spam"},
	FolderDrafts:  {"drafts", "draft", "[gmail]/drafts", "[google mail]/drafts"},
	FolderSent:    {"sent", "sent mail", "sent items", "[gmail]/sent mail", "[google mail]/sent mail"},
}

// resolveFolder finds the mailbox serving kind, preferring the RFC 6154
// special-use attribute and falling back to name heuristics. Fails with
// UndefinedFolder if neither resolves.
func (s *Session) resolveFolder(ctx context.Context, kind FolderKind) (string, error) {
	infos, err := s.ListMailboxes(ctx, "*")
	if err != nil {
		return "", err
	}

	attr := kind.attribute()
	for _, info := range infos {
		if attr != "" && info.HasAttribute(attr) {
			return info.Name, nil
		}
	}

	for _, candidate := range nameHeuristics[kind] {
		for _, info := range infos {
			if strings.EqualFold(info.Name, candidate) {
				return info.Name, nil
			}
		}
	}

	return "", newError(ErrUndefinedFolder, kind.String())
}

// MoveToTrash moves every message in set to the account's trash mailbox.
func MoveToTrash[T model.Numeric](ctx context.Context, s *Session, set *model.MessageIdentifierSet[T]) error {
	dest, err := s.resolveFolder(ctx, FolderTrash)
	if err != nil {
		return err
	}
	return Move(ctx, s, set, dest)
}

// Archive moves every message in set to the account's archive mailbox.
func Archive[T model.Numeric](ctx context.Context, s *Session, set *model.MessageIdentifierSet[T]) error {
	dest, err := s.resolveFolder(ctx, FolderArchive)
	if err != nil {
		return err
	}
	return Move(ctx, s, set, dest)
}

// MarkAsJunk moves every message in set to the account's junk/spam
// mailbox.
func MarkAsJunk[T model.Numeric](ctx context.Context, s *Session, set *model.MessageIdentifierSet[T]) error {
	dest, err := s.resolveFolder(ctx, FolderJunk)
	if err != nil {
		return err
	}
	return Move(ctx, s, set, dest)
}

// SaveAsDraft appends raw (a fully composed RFC 5322 message) to the
// account's drafts mailbox with the \Draft flag set.
func (s *Session) SaveAsDraft(ctx context.Context, raw []byte) error {
	dest, err := s.resolveFolder(ctx, FolderDrafts)
	if err != nil {
		return err
	}
	return s.appendMessage(ctx, dest, raw, []model.Flag{model.FlagDraft})
}
