// Package memcore is the client for the long-term memory backend: a
// persistent authenticated websocket speaking a JSON protocol with no
// correlation ids, so requests and responses pair strictly by order.
package memcore

import "time"

// Record is one archived memory entry.
type Record struct {
	ID        string
	Content   string
	Category  string
	Tags      []string
	CreatedAt time.Time
}

type authRequest struct {
	Type     string `json:"type"`
	Login    string `json:"login"`
	Password string `json:"password"`
}

type insertRequest struct {
	Type       string   `json:"type"`
	Partition  string   `json:"partition"`
	Data       string   `json:"data"`
	Tags       []string `json:"tags"`
	Categories []string `json:"categories"`
}

type searchRequest struct {
	Type       string   `json:"type"`
	Partition  string   `json:"partition"`
	Tags       []string `json:"tags"`
	Categories []string `json:"categories"`
}

type serverMessage struct {
	Type    string     `json:"type"`
	Message string     `json:"message,omitempty"`
	ID      string     `json:"id,omitempty"`
	Items   []wireItem `json:"items,omitempty"`
}

type wireItem struct {
	ID         string   `json:"id"`
	Data       string   `json:"data"`
	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`
	CreatedMS  int64    `json:"created_ms"`
}

func (it wireItem) toRecord() Record {
	rec := Record{
		ID:        it.ID,
		Content:   it.Data,
		Tags:      it.Tags,
		CreatedAt: time.UnixMilli(it.CreatedMS),
	}
	if len(it.Categories) > 0 {
		rec.Category = it.Categories[0]
	}
	return rec
}
