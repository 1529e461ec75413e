package disruption

// siblingNames keeps the uri each impact gave to the siblings it created. A replay
// after an unrelated delete recreates them under the same uri.
type siblingNames struct {
	// impact id -> signature key -> uri
	byImpact map[string]map[string]string
	// uri -> impact id
	reserved map[string]string
}

func newSiblingNames() *siblingNames {
	return &siblingNames{
		byImpact: map[string]map[string]string{},
		reserved: map[string]string{},
	}
}

func (n *siblingNames) lookup(impactID string, key string) (string, bool) {
	uri, exists := n.byImpact[impactID][key]
	return uri, exists
}

func (n *siblingNames) isReserved(uri string) bool {
	_, exists := n.reserved[uri]
	return exists
}

func (n *siblingNames) remember(impactID string, key string, uri string) {
	names, exists := n.byImpact[impactID]
	if !exists {
		names = map[string]string{}
		n.byImpact[impactID] = names
	}
	if previous, exists := names[key]; exists && previous != uri {
		delete(n.reserved, previous)
	}

	names[key] = uri
	n.reserved[uri] = impactID
}

func (n *siblingNames) forget(impactIDs ...string) {
	for _, impactID := range impactIDs {
		for _, uri := range n.byImpact[impactID] {
			delete(n.reserved, uri)
		}
		delete(n.byImpact, impactID)
	}
}

func (n *siblingNames) len() int {
	return len(n.reserved)
}
