package mutation

import (
	"encoding/json"
	"fmt"
)

// header is the part of the wire object common to every kind.
type header struct {
	Type    string `json:"type"`
	GroupID int64  `json:"group_id"`
	TopicID int64  `json:"topic_id"`
}

// Decode parses one flat JSON request object:
//
//	{"type":"contribution","group_id":1,"topic_id":2,"user_id":3,"amount":10}
//
// An unrecognised type decodes to Unknown without error; only malformed JSON
// or a missing type tag fail.
func Decode(data []byte) (Request, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decode request header: %w", err)
	}
	if h.Type == "" {
		return nil, fmt.Errorf("decode request: missing type")
	}

	b := At(h.GroupID, h.TopicID)
	r := newRequest(Kind(h.Type), b)
	if r == nil {
		return Unknown{Base: b, Tag: h.Type}, nil
	}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("decode %s request: %w", h.Type, err)
	}
	return deref(r), nil
}

// DecodeMap decodes a request already parsed into a generic map, as produced
// by YAML scenario files.
func DecodeMap(m map[string]any) (Request, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode request map: %w", err)
	}
	return Decode(data)
}

// Encode renders r in the flat wire form accepted by Decode. Keys are
// emitted in sorted order.
func Encode(r Request) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", r.Kind(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s request: %w", r.Kind(), err)
	}

	t := r.Target()
	fields["type"], _ = json.Marshal(string(r.Kind()))
	fields["group_id"], _ = json.Marshal(t.GroupID)
	fields["topic_id"], _ = json.Marshal(t.TopicID)
	return json.Marshal(fields)
}

// newRequest returns a pointer to a zero request of kind k carrying b, or nil
// when k is not part of the vocabulary.
func newRequest(k Kind, b Base) any {
	switch k {
	case KindContribution:
		return &Contribution{Base: b}
	case KindStartSalavat:
		return &StartSalavat{Base: b}
	case KindStartZekr:
		return &StartZekr{Base: b}
	case KindStartQuran:
		return &StartQuran{Base: b}
	case KindDeactivate:
		return &Deactivate{Base: b}
	case KindSetBounds:
		return &SetBounds{Base: b}
	case KindSetPeriod:
		return &SetPeriod{Base: b}
	case KindSetStop:
		return &SetStop{Base: b}
	case KindSetRange:
		return &SetRange{Base: b}
	case KindSetZekrText:
		return &SetZekrText{Base: b}
	case KindSetCompletionMessage:
		return &SetCompletionMessage{Base: b}
	case KindSetDailyReset:
		return &SetDailyReset{Base: b}
	case KindRenameTopic:
		return &RenameTopic{Base: b}
	case KindDeleteTopic:
		return &DeleteTopic{Base: b}
	case KindResetDailyGroup:
		return &ResetDailyGroup{Base: b}
	case KindResetDailyTopic:
		return &ResetDailyTopic{Base: b}
	case KindResetPeriodicTopic:
		return &ResetPeriodicTopic{Base: b}
	case KindResetStats:
		return &ResetStats{Base: b}
	case KindResetAll:
		return &ResetAll{Base: b}
	case KindSetGroupActive:
		return &SetGroupActive{Base: b}
	case KindSetOffHours:
		return &SetOffHours{Base: b}
	case KindSetTagTimestamp:
		return &SetTagTimestamp{Base: b}
	default:
		return nil
	}
}

// deref turns the pointer built by newRequest back into a value request so
// callers can type-switch on value types only.
func deref(p any) Request {
	switch r := p.(type) {
	case *Contribution:
		return *r
	case *StartSalavat:
		return *r
	case *StartZekr:
		return *r
	case *StartQuran:
		return *r
	case *Deactivate:
		return *r
	case *SetBounds:
		return *r
	case *SetPeriod:
		return *r
	case *SetStop:
		return *r
	case *SetRange:
		return *r
	case *SetZekrText:
		return *r
	case *SetCompletionMessage:
		return *r
	case *SetDailyReset:
		return *r
	case *RenameTopic:
		return *r
	case *DeleteTopic:
		return *r
	case *ResetDailyGroup:
		return *r
	case *ResetDailyTopic:
		return *r
	case *ResetPeriodicTopic:
		return *r
	case *ResetStats:
		return *r
	case *ResetAll:
		return *r
	case *SetGroupActive:
		return *r
	case *SetOffHours:
		return *r
	case *SetTagTimestamp:
		return *r
	default:
		panic(fmt.Sprintf("mutation: unexpected decoded type %T", p))
	}
}

// Kinds lists the vocabulary in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindContribution, KindStartSalavat, KindStartZekr, KindStartQuran,
		KindDeactivate, KindSetBounds, KindSetPeriod, KindSetStop, KindSetRange,
		KindSetZekrText, KindSetCompletionMessage, KindSetDailyReset,
		KindRenameTopic, KindDeleteTopic, KindResetDailyGroup, KindResetDailyTopic,
		KindResetPeriodicTopic, KindResetStats, KindResetAll, KindSetGroupActive,
		KindSetOffHours, KindSetTagTimestamp,
	}
}
