package protocol

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/assert/v2"

	"relaychat/internal/model"
)

func TestDecodeClassifiesByType(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"send", `{"type":"send_message","clientMsgId":"c1","to":"bob","body":"hi","ts":1}`, TypeSendMessage},
		{"ack", `{"type":"ack_message","serverMsgId":"s1"}`, TypeAckMessage},
		{"ping", `{"type":"ping"}`, TypePing},
		{"incoming", `{"type":"incoming_message","serverMsgId":"s1","from":"alice","body":"hi","ts":1}`, TypeIncomingMessage},
		{"presence", `{"type":"presence_update","user":"bob","status":"online"}`, TypePresenceUpdate},
		{"batch", `{"type":"undelivered_batch","messages":[{"serverMsgId":"s1","from":"a","to":"b","body":"x","ts":1}]}`, TypeUndeliveredBatch},
		{"error", `{"type":"error","error":"boom"}`, TypeError},
		{"pong", `{"type":"pong","timestamp":17}`, TypePong},
		// unrecognized types decode fine; dropping them is the
		// handler's choice, not a parse failure
		{"unknown", `{"type":"something_new"}`, "something_new"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := Decode([]byte(tc.raw))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			assert.Equal(t, tc.want, f.Type)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json at all`,
		`{"serverMsgId":"s1"}`, // no discriminator
		`[]`,
	} {
		if _, err := Decode([]byte(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestReceiptVersusAckShape(t *testing.T) {
	// a transport receipt carries the sender's correlation id; a relayed
	// delivery acknowledgment does not. The consumer distinguishes the
	// two solely by clientMsgId presence.
	receipt, err := json.Marshal(Receipt("s1", "c1", "bob"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f, err := Decode(receipt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	assert.Equal(t, TypeAckMessage, f.Type)
	assert.Equal(t, "c1", f.ClientMsgID)

	ack, err := json.Marshal(Ack("s1"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f, err = Decode(ack)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	assert.Equal(t, TypeAckMessage, f.Type)
	assert.Equal(t, "", f.ClientMsgID)
}

func TestUndeliveredBatchOmitsSenderFields(t *testing.T) {
	stored := []model.Message{
		{ServerMsgID: "s1", ClientMsgID: "c1", From: "alice", To: "bob", Body: "hi", Timestamp: 1},
		{ServerMsgID: "s2", ClientMsgID: "c2", From: "alice", To: "bob", Body: "again", Timestamp: 2},
	}

	data, err := json.Marshal(UndeliveredBatch(stored))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// batch entries carry exactly the incoming_message field subset;
	// the sender's correlation id and the routing address stay off the
	// wire
	var raw struct {
		Messages []map[string]any `json:"messages"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	assert.Equal(t, 2, len(raw.Messages))
	for _, entry := range raw.Messages {
		if _, ok := entry["clientMsgId"]; ok {
			t.Fatalf("batch entry leaks clientMsgId: %v", entry)
		}
		if _, ok := entry["to"]; ok {
			t.Fatalf("batch entry leaks to: %v", entry)
		}
	}
	assert.Equal(t, "s1", raw.Messages[0]["serverMsgId"])
	assert.Equal(t, "alice", raw.Messages[0]["from"])
	assert.Equal(t, "hi", raw.Messages[0]["body"])
}

func TestIncomingOmitsClientID(t *testing.T) {
	m := &model.Message{
		ServerMsgID: "s1",
		ClientMsgID: "c1",
		From:        "alice",
		To:          "bob",
		Body:        "hi",
		Timestamp:   1,
	}

	data, err := json.Marshal(Incoming(m))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	// the sender's correlation id never reaches the recipient
	assert.Equal(t, "", f.ClientMsgID)
	assert.Equal(t, "alice", f.From)
	assert.Equal(t, "hi", f.Body)
}
