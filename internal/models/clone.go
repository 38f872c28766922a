package models

// Explicit deep-copy helpers. Snapshotting goes through these instead of
// marshal/unmarshal round-trips; values inside the state maps are
// primitives (numbers, strings, bools), so a shallow value copy per key
// is a full copy.

// CloneStateMap copies an attribute or status map.
func CloneStateMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CloneHistory copies a choice history slice.
func CloneHistory(h []ChoiceHistoryEntry) []ChoiceHistoryEntry {
	if h == nil {
		return nil
	}
	out := make([]ChoiceHistoryEntry, len(h))
	copy(out, h)
	return out
}

// CloneScene deep-copies a scene, including dialogues and choices.
func CloneScene(s Scene) Scene {
	out := s
	out.Dialogues = make([]DialogueItem, len(s.Dialogues))
	copy(out.Dialogues, s.Dialogues)
	if s.Choices != nil {
		out.Choices = make([]Choice, len(s.Choices))
		for i, c := range s.Choices {
			out.Choices[i] = CloneChoice(c)
		}
	}
	return out
}

// CloneChoice deep-copies a choice, including nested scenes.
func CloneChoice(c Choice) Choice {
	out := c
	if c.AttributesDelta != nil {
		out.AttributesDelta = CloneStateMap(c.AttributesDelta)
	}
	if c.StatusesDelta != nil {
		out.StatusesDelta = CloneStateMap(c.StatusesDelta)
	}
	if c.SubsequentDialogues != nil {
		out.SubsequentDialogues = make([]DialogueItem, len(c.SubsequentDialogues))
		copy(out.SubsequentDialogues, c.SubsequentDialogues)
	}
	if c.NextScenes != nil {
		out.NextScenes = make([]Scene, len(c.NextScenes))
		for i, ns := range c.NextScenes {
			out.NextScenes[i] = CloneScene(ns)
		}
	}
	if c.EndingCondition != nil {
		out.EndingCondition = CloneStateMap(c.EndingCondition)
	}
	return out
}

// CloneScenes deep-copies a scene slice.
func CloneScenes(scenes []Scene) []Scene {
	out := make([]Scene, len(scenes))
	for i, s := range scenes {
		out[i] = CloneScene(s)
	}
	return out
}
