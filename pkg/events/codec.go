package events

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"queueforge/pkg/types"
)

// Encode serialises ev as a protobuf Struct message.
func Encode(ev Event) ([]byte, error) {
	msg, err := structpb.NewStruct(map[string]any{
		"type":              string(ev.Type),
		"planet_id":         ev.PlanetID,
		"category":          string(ev.Category),
		"item_id":           ev.ItemID,
		"target_kind":       ev.TargetKind,
		"level_or_quantity": ev.LevelOrQuantity,
		"at":                ev.At,
	})
	if err != nil {
		return nil, fmt.Errorf("build event struct: %w", err)
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// Decode parses a payload produced by Encode.
func Decode(data []byte) (Event, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	f := msg.GetFields()
	return Event{
		Type:            Type(f["type"].GetStringValue()),
		PlanetID:        int64(f["planet_id"].GetNumberValue()),
		Category:        types.Category(f["category"].GetStringValue()),
		ItemID:          f["item_id"].GetStringValue(),
		TargetKind:      f["target_kind"].GetStringValue(),
		LevelOrQuantity: int(f["level_or_quantity"].GetNumberValue()),
		At:              int64(f["at"].GetNumberValue()),
	}, nil
}
