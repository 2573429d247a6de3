package imap

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kestrelmail/goimapcore/handlers"
	"github.com/kestrelmail/goimapcore/model"
	"github.com/kestrelmail/goimapcore/wire"
)

// Go has no generic methods, so the identifier-set-typed operations of
// spec §4.7 (fetch_message_info, fetch_part, search, store, copy, move,
// expunge) are free functions parameterized over model.Numeric, taking
// the Session as their first argument.

// isUID reports whether T is model.UID rather than model.SequenceNumber,
// selecting between a command's UID-prefixed and plain forms.
func isUID[T model.Numeric]() bool {
	var zero T
	_, ok := any(zero).(model.UID)
	return ok
}

func verbFor[T model.Numeric](base string) string {
	if isUID[T]() {
		return "UID " + base
	}
	return base
}

func requireNonEmpty[T model.Numeric](set *model.MessageIdentifierSet[T]) error {
	if set == nil || set.IsEmpty() {
		return newError(ErrEmptyIdentifierSet, "")
	}
	return nil
}

// FetchMessageInfo fetches UID, FLAGS, ENVELOPE, BODYSTRUCTURE and the
// raw message header (decoded into AdditionalHeader) for every message
// in set (spec §4.4.a). limit caps the number of messages
// requested per call when > 0; 0 means unbounded.
func FetchMessageInfo[T model.Numeric](ctx context.Context, s *Session, set *model.MessageIdentifierSet[T], limit int, warn func(string)) ([]model.MessageInfo, error) {
	if err := requireNonEmpty(set); err != nil {
		return nil, err
	}
	rangeText := sequenceText(set, limit)
	args := []wire.Arg{
		wire.Atom(rangeText),
		wire.List(
			wire.Atom("UID"), wire.Atom("FLAGS"), wire.Atom("ENVELOPE"), wire.Atom("BODYSTRUCTURE"),
			wire.Atom("BODY.PEEK[HEADER]"),
		),
	}
	res, err := s.dispatch(ctx, verbFor[T]("FETCH"), args, handlers.NewFetchMessageInfo(warn), false)
	if err != nil {
		return nil, err
	}
	msgs, _ := res.([]model.MessageInfo)
	return msgs, nil
}

// FetchStructure retrieves the BODYSTRUCTURE for one message.
func FetchStructure[T model.Numeric](ctx context.Context, s *Session, id T) (*model.BodyStructure, error) {
	args := []wire.Arg{wire.Atom(numericText(id)), wire.List(wire.Atom("BODYSTRUCTURE"))}
	res, err := s.dispatch(ctx, verbFor[T]("FETCH"), args, handlers.NewFetchStructure(), false)
	if err != nil {
		return nil, err
	}
	structure, _ := res.(*model.BodyStructure)
	return structure, nil
}

// FetchPart retrieves one leaf body part's raw bytes (spec §4.4.b).
// section == nil is interpreted as [1] for a single-part message.
func FetchPart[T model.Numeric](ctx context.Context, s *Session, id T, section []int) ([]byte, error) {
	if len(section) == 0 {
		section = []int{1}
	}
	sectionArg := wire.Atom("BODY.PEEK[" + sectionString(section) + "]")
	args := []wire.Arg{wire.Atom(numericText(id)), wire.List(sectionArg)}

	var wantUID model.UID
	if isUID[T]() {
		wantUID = model.UID(any(id).(model.UID))
	}
	res, err := s.dispatch(ctx, verbFor[T]("FETCH"), args, handlers.NewFetchPart(wantUID), false)
	if err != nil {
		return nil, err
	}
	data, _ := res.([]byte)
	return data, nil
}

// FetchAllMessageParts executes the part-traversal orchestration of
// spec §4.5: FetchStructure, depth-first leaf walk, then FetchPart per
// leaf, preferring UID when info.HasUID().
func FetchAllMessageParts(ctx context.Context, s *Session, info model.MessageInfo) ([]model.MessagePart, error) {
	structure := info.Structure
	if structure == nil {
		var err error
		if info.HasUID() {
			structure, err = FetchStructure(ctx, s, info.UID)
		} else {
			structure, err = FetchStructure(ctx, s, info.Sequence)
		}
		if err != nil {
			return nil, err
		}
	}
	// The pipeline still serializes every actual FETCH on the wire
	// (spec §5's at-most-one-command-in-flight discipline), but
	// fanning the leaf walk out through an errgroup keeps the calling
	// code free of manual index bookkeeping and cancels the remaining
	// leaves as soon as one fetch fails.
	leaves := structure.WalkLeaves()
	parts := make([]model.MessagePart, len(leaves))
	g, gctx := errgroup.WithContext(ctx)
	for i, leaf := range leaves {
		i, leaf := i, leaf
		g.Go(func() error {
			var data []byte
			var err error
			if info.HasUID() {
				data, err = FetchPart(gctx, s, info.UID, leaf.Section)
			} else {
				data, err = FetchPart(gctx, s, info.Sequence, leaf.Section)
			}
			if err != nil {
				return err
			}
			parts[i] = messagePartFromLeaf(leaf, data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

func messagePartFromLeaf(leaf model.LeafSection, data []byte) model.MessagePart {
	part := model.MessagePart{
		Section:     leaf.Section,
		ContentType: leaf.Part.ContentType(),
		Encoding:    strings.ToLower(leaf.Part.Fields.Encoding),
		Filename:    leaf.Part.Filename(),
		Charset:     leaf.Part.Fields.Params["charset"],
		Data:        data,
	}
	if leaf.Part.Extension != nil {
		part.Disposition = leaf.Part.Extension.Disposition
	}
	return part
}

// FetchMessage assembles a full model.Message (envelope info plus every
// body part) for one already-fetched MessageInfo.
func FetchMessage(ctx context.Context, s *Session, info model.MessageInfo) (model.Message, error) {
	parts, err := FetchAllMessageParts(ctx, s, info)
	if err != nil {
		return model.Message{}, err
	}
	return model.Message{Info: info, Parts: parts}, nil
}

// FetchMessages fetches message info for set, then every part of every
// message.
func FetchMessages[T model.Numeric](ctx context.Context, s *Session, set *model.MessageIdentifierSet[T], limit int, warn func(string)) ([]model.Message, error) {
	infos, err := FetchMessageInfo(ctx, s, set, limit, warn)
	if err != nil {
		return nil, err
	}
	out := make([]model.Message, 0, len(infos))
	for _, info := range infos {
		msg, err := FetchMessage(ctx, s, info)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// Search issues SEARCH or UID SEARCH depending on T, returning the
// matching identifiers as a set.
func Search[T model.Numeric](ctx context.Context, s *Session, criteria string) (*model.MessageIdentifierSet[T], error) {
	if criteria == "" {
		criteria = "ALL"
	}
	args := []wire.Arg{wire.Atom(criteria)}
	res, err := s.dispatch(ctx, verbFor[T]("SEARCH"), args, handlers.NewSearch(), false)
	if err != nil {
		return nil, err
	}
	ids, _ := res.([]uint32)
	out := model.NewMessageIdentifierSet[T]()
	for _, id := range ids {
		out.Insert(T(id))
	}
	return out, nil
}

// StoreOp selects STORE's flag-update mode.
type StoreOp int

const (
	StoreReplace StoreOp = iota
	StoreAdd
	StoreRemove
)

func (op StoreOp) wireForm() string {
	switch op {
	case StoreAdd:
		return "+FLAGS.SILENT"
	case StoreRemove:
		return "-FLAGS.SILENT"
	default:
		return "FLAGS.SILENT"
	}
}

// Store applies a flag update to every message in set.
func Store[T model.Numeric](ctx context.Context, s *Session, set *model.MessageIdentifierSet[T], op StoreOp, flags []model.Flag) error {
	if err := requireNonEmpty(set); err != nil {
		return err
	}
	flagArgs := make([]wire.Arg, len(flags))
	for i, f := range flags {
		flagArgs[i] = wire.Atom(string(f))
	}
	args := []wire.Arg{
		wire.Atom(sequenceText(set, 0)),
		wire.Atom(op.wireForm()),
		wire.List(flagArgs...),
	}
	_, err := s.dispatch(ctx, verbFor[T]("STORE"), args, handlers.NewStore(true), false)
	return err
}

// Copy copies every message in set into dest.
func Copy[T model.Numeric](ctx context.Context, s *Session, set *model.MessageIdentifierSet[T], dest string) error {
	if err := requireNonEmpty(set); err != nil {
		return err
	}
	args := []wire.Arg{wire.Atom(sequenceText(set, 0)), wire.Quoted(dest)}
	_, err := s.dispatch(ctx, verbFor[T]("COPY"), args, handlers.NewVoid("CopyFailed"), false)
	return err
}

// Move moves every message in set into dest, using native MOVE when the
// server advertises it (and UIDPLUS for the UID-addressed form), else
// falling back to COPY + STORE(+\Deleted) + EXPUNGE (spec scenario 4).
func Move[T model.Numeric](ctx context.Context, s *Session, set *model.MessageIdentifierSet[T], dest string) error {
	if err := requireNonEmpty(set); err != nil {
		return err
	}
	canNativeMove := s.HasCapability("MOVE") && (!isUID[T]() || s.HasCapability("UIDPLUS"))
	if canNativeMove {
		args := []wire.Arg{wire.Atom(sequenceText(set, 0)), wire.Quoted(dest)}
		_, err := s.dispatch(ctx, verbFor[T]("MOVE"), args, handlers.NewVoid("CopyFailed"), false)
		return err
	}

	if err := Copy(ctx, s, set, dest); err != nil {
		return err
	}
	if err := Store(ctx, s, set, StoreAdd, []model.Flag{model.FlagDeleted}); err != nil {
		return err
	}
	_, err := Expunge(ctx, s)
	return err
}

// Expunge issues EXPUNGE, permanently removing every \Deleted message in
// the selected mailbox and returning the sequence numbers removed, in
// server-reported order (each renumbers subsequent messages).
func Expunge(ctx context.Context, s *Session) ([]uint32, error) {
	res, err := s.dispatch(ctx, "EXPUNGE", nil, handlers.NewExpunge(), false)
	if err != nil {
		return nil, err
	}
	seqs, _ := res.([]uint32)
	return seqs, nil
}

func sequenceText[T model.Numeric](set *model.MessageIdentifierSet[T], limit int) string {
	if limit <= 0 {
		return set.String()
	}
	all := set.All()
	if len(all) > limit {
		all = all[:limit]
	}
	limited := model.NewMessageIdentifierSet[T]()
	for _, id := range all {
		limited.Insert(id)
	}
	return limited.String()
}

func numericText[T model.Numeric](id T) string {
	return model.SetOf(id).String()
}

func sectionString(section []int) string {
	s := model.MessagePart{Section: section}
	return s.SectionString()
}
