package search

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const DefaultLimit = 20

// Query describes a full-text lookup inside one conversation.
// Only messages whose sequence lies within [From, To] may match.
type Query struct {
	RawInput       string
	ConversationID uuid.UUID
	Terms          string
	Actor          string
	From           int64
	To             int64
	Limit          int
}

type Hit struct {
	Sequence int64  `json:"sequence"`
	Actor    string `json:"actor"`
	Text     string `json:"text"`
}

// Parse splits a raw search string into terms and command-line style flags.
// Example: "deploy failed --actor alice --limit 5"
func Parse(input string) Query {
	query := Query{RawInput: input, Limit: DefaultLimit}

	parts := strings.Fields(input)
	var terms []string
	for i := 0; i < len(parts); i++ {
		part := parts[i]
		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			value := parts[i+1]
			switch strings.TrimPrefix(part, "--") {
			case "actor":
				query.Actor = value
			case "limit":
				if limit, err := strconv.Atoi(value); err == nil && limit > 0 {
					query.Limit = limit
				}
			}
			i++
			continue
		}
		terms = append(terms, part)
	}

	query.Terms = strings.Join(terms, " ")
	return query
}
