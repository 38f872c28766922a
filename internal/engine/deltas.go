package engine

// Delta application for choice consequences. A numeric delta adds to the
// current numeric value (default 0 when absent); nil or false removes the
// key (statuses only — attributes have no remove semantics); any other
// value overwrites.
//
// Before applying, each delta map is cross-checked against the other
// bucket's known keys: a key already living in statuses that shows up in
// an attributes delta is treated as a status delta, and vice versa. This
// repairs authoring mistakes where a key was filed under the wrong
// bucket.

// applyChoiceDeltas mutates attributes and statuses in place.
func applyChoiceDeltas(attributes, statuses map[string]interface{}, attrDelta, statusDelta map[string]interface{}) {
	for key, value := range attrDelta {
		if _, isStatus := statuses[key]; isStatus {
			applyStatusDelta(statuses, key, value)
			continue
		}
		applyAttributeDelta(attributes, key, value)
	}
	for key, value := range statusDelta {
		if _, isAttr := attributes[key]; isAttr {
			applyAttributeDelta(attributes, key, value)
			continue
		}
		applyStatusDelta(statuses, key, value)
	}
}

func applyAttributeDelta(attributes map[string]interface{}, key string, value interface{}) {
	if delta, ok := toNumber(value); ok {
		current, _ := toNumber(attributes[key])
		attributes[key] = current + delta
		return
	}
	if value == nil || value == false {
		// Attributes have no remove semantics; ignore removal markers.
		return
	}
	attributes[key] = value
}

func applyStatusDelta(statuses map[string]interface{}, key string, value interface{}) {
	if value == nil || value == false {
		delete(statuses, key)
		return
	}
	if delta, ok := toNumber(value); ok {
		if current, isNum := toNumber(statuses[key]); isNum {
			statuses[key] = current + delta
			return
		}
		if _, present := statuses[key]; !present {
			statuses[key] = delta
			return
		}
	}
	statuses[key] = value
}
