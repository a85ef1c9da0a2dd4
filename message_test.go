package gobayeux

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestMessage_TimestampAsTime(t *testing.T) {
	m := Message{Timestamp: "2020-05-01T06:28:51.00"}
	got, err := m.TimestampAsTime()
	if err != nil {
		t.Errorf("expected a valid timestamp, got err %q", err)
	}
	if want := time.Date(2020, time.May, 1, 6, 28, 51, 0, time.UTC); want != got {
		t.Errorf("unexpected time parse; want %v, got %v", want, got)
	}
}

func TestMessage_ParseError(t *testing.T) {
	testCases := []struct {
		name      string
		errorStr  string
		expected  MessageError
		shouldErr bool
	}{
		// Examples taken from the Bayeux reference
		{
			"no error args",
			"401::No client ID",
			MessageError{401, []string{""}, "No client ID"},
			false,
		},
		{
			"one nonsense error arg",
			"402:xj3sjdsjdsjad:Unknown Client ID",
			MessageError{402, []string{"xj3sjdsjdsjad"}, "Unknown Client ID"},
			false,
		},
		{
			"two args",
			"403:xj3sjdsjdsjad,/foo/bar:Subscription denied",
			MessageError{403, []string{"xj3sjdsjdsjad", "/foo/bar"}, "Subscription denied"},
			false,
		},
		{
			"one channel name arg",
			"404:/foo/bar:Unknown Channel",
			MessageError{404, []string{"/foo/bar"}, "Unknown Channel"},
			false,
		},
		{
			"unknown client without args",
			"402::Unknown client",
			MessageError{402, []string{""}, "Unknown client"},
			false,
		},
		// Following cases aren't from the Bayeux reference
		{
			"invalid status code",
			"4o4:/foo/bar:Broken Error Code",
			MessageError{},
			true,
		},
		{
			"invalid error string",
			"404-/foo/bar-Unknown Channel",
			MessageError{},
			true,
		},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			m := Message{Error: tc.errorStr}
			got, err := m.ParseError()
			if err != nil && tc.shouldErr {
				return
			}
			if err != nil && !tc.shouldErr {
				t.Errorf("expected a parsed MessageError but got an err: %q", err)
			}
			if err == nil && tc.shouldErr {
				t.Error("expected an error but didn't get one")
			}

			want := tc.expected
			if want.ErrorCode != got.ErrorCode {
				t.Errorf("error parsing error code; want %v, got %v", want.ErrorCode, got.ErrorCode)
			}

			if want.ErrorMessage != got.ErrorMessage {
				t.Errorf("error parsing error message; want %v, got %v", want.ErrorMessage, got.ErrorMessage)
			}

			if len(want.ErrorArgs) != len(got.ErrorArgs) {
				t.Errorf("error parsing error args (found different lengths); want %v, got %v", want.ErrorArgs, got.ErrorArgs)
			}

			for index, arg := range want.ErrorArgs {
				if arg != got.ErrorArgs[index] {
					t.Errorf("error parsing error args (found different items at same position %d); want %v, got %v", index, want.ErrorArgs, got.ErrorArgs)
				}
			}
		})
	}
}

func TestMessage_GetExt(t *testing.T) {
	testCases := []struct {
		name         string
		message      *Message
		shouldCreate bool
		want         map[string]interface{}
	}{
		{
			name:         "nil extension is initialized as a map with create=true",
			message:      &Message{},
			shouldCreate: true,
			want:         make(map[string]interface{}),
		},
		{
			name:         "nil extension is not initialized with create=false",
			message:      &Message{},
			shouldCreate: false,
			want:         nil,
		},
		{
			name:         "non-nil extension is not overwritten with create=true",
			message:      &Message{Ext: map[string]interface{}{"foo": "bar"}},
			shouldCreate: true,
			want:         map[string]interface{}{"foo": "bar"},
		},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := tc.message.GetExt(tc.shouldCreate)
			if tc.want == nil && got != nil {
				t.Errorf("expected GetExt(%v) to return nil, got %v", tc.shouldCreate, got)
			}
			if tc.want != nil && got == nil {
				t.Errorf("expected GetExt(%v) to return %v, got nil", tc.shouldCreate, tc.want)
			}
			if len(tc.want) == len(got) {
				for k, vi := range tc.want {
					wantv, _ := vi.(string)
					gotv, _ := got[k].(string)
					if wantv != gotv {
						t.Errorf("expected Ext[%s] == %s, got %s", k, wantv, gotv)
					}
				}
			}
		})
	}
}

func TestAdvice_MustNotRetryOrHandshake(t *testing.T) {
	testCases := []struct {
		name      string
		reconnect string
		expected  bool
	}{
		{
			"reconnect advice is none",
			"none",
			true,
		},
		{
			"reconnect advice is retry",
			"retry",
			false,
		},
		{
			"reconnect advice is handshake",
			"handshake",
			false,
		},
	}
	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			a := Advice{Reconnect: tc.reconnect}
			if got, want := a.MustNotRetryOrHandshake(), tc.expected; want != got {
				t.Errorf("expected MustNotRetryOrHandshake() = %v, got %v", want, got)
			}
		})
	}
}

func TestAdvice_ShouldRetry(t *testing.T) {
	testCases := []struct {
		name      string
		reconnect string
		expected  bool
	}{
		{
			"reconnect advice is none",
			"none",
			false,
		},
		{
			"reconnect advice is retry",
			"retry",
			true,
		},
		{
			"reconnect advice is handshake",
			"handshake",
			false,
		},
	}
	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			a := Advice{Reconnect: tc.reconnect}
			if got, want := a.ShouldRetry(), tc.expected; want != got {
				t.Errorf("expected ShouldRetry() = %v, got %v", want, got)
			}
		})
	}
}

func TestAdvice_ShouldHandshake(t *testing.T) {
	testCases := []struct {
		name      string
		reconnect string
		expected  bool
	}{
		{
			"reconnect advice is none",
			"none",
			false,
		},
		{
			"reconnect advice is retry",
			"retry",
			false,
		},
		{
			"reconnect advice is handshake",
			"handshake",
			true,
		},
	}
	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			a := Advice{Reconnect: tc.reconnect}
			if got, want := a.ShouldHandshake(), tc.expected; want != got {
				t.Errorf("expected ShouldHandshake() = %v, got %v", want, got)
			}
		})
	}
}

func TestAdvice_TimeoutAsDuration(t *testing.T) {
	testCases := []struct {
		name     string
		timeout  int
		expected time.Duration
	}{
		{
			"two seconds",
			2000,
			time.Duration(2) * time.Second,
		},
		{
			"two hundred milliseconds",
			200,
			time.Duration(200) * time.Millisecond,
		},
		{
			"three minutes",
			180000,
			time.Duration(3) * time.Minute,
		},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			a := Advice{Timeout: tc.timeout}
			if got, want := a.TimeoutAsDuration(), tc.expected; want != got {
				t.Errorf("expected TimeoutAsDuration() = %v, got %v", want, got)
			}
		})
	}
}

func TestAdvice_IntervalAsDuration(t *testing.T) {
	testCases := []struct {
		name     string
		interval int
		expected time.Duration
	}{
		{
			"two seconds",
			2000,
			time.Duration(2) * time.Second,
		},
		{
			"two hundred milliseconds",
			200,
			time.Duration(200) * time.Millisecond,
		},
		{
			"three minutes",
			180000,
			time.Duration(3) * time.Minute,
		},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			a := Advice{Interval: tc.interval}
			if got, want := a.IntervalAsDuration(), tc.expected; want != got {
				t.Errorf("expected IntervalAsDuration() = %v, got %v", want, got)
			}
		})
	}
}

func TestMessage_HasData(t *testing.T) {
	testCases := []struct {
		name string
		data json.RawMessage
		want bool
	}{
		{"no data", nil, false},
		{"empty data", json.RawMessage{}, false},
		{"json null", json.RawMessage("null"), false},
		{"string", json.RawMessage(`"data"`), true},
		{"object", json.RawMessage(`{"a":1}`), true},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			m := Message{Data: tc.data}
			if got := m.HasData(); tc.want != got {
				t.Errorf("expected HasData() = %v, got %v", tc.want, got)
			}
		})
	}
}

func TestMessage_UnmarshalData(t *testing.T) {
	m := Message{Data: json.RawMessage(`{"text":"hello"}`)}
	var payload struct {
		Text string `json:"text"`
	}
	if err := m.UnmarshalData(&payload); err != nil {
		t.Fatalf("expected data to decode, got err %q", err)
	}
	if payload.Text != "hello" {
		t.Errorf("unexpected payload; want hello, got %q", payload.Text)
	}

	empty := Message{}
	if err := empty.UnmarshalData(&payload); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData for a message without data, got %v", err)
	}
}

func TestMessage_IsMeta(t *testing.T) {
	if m := (Message{Channel: MetaConnect}); !m.IsMeta() {
		t.Error("expected /meta/connect to be a meta message")
	}
	if m := (Message{Channel: "/chat/room"}); m.IsMeta() {
		t.Error("expected /chat/room to not be a meta message")
	}
}

func TestMessage_SuccessfulDecoding(t *testing.T) {
	testCases := []struct {
		name string
		body string
		want bool
	}{
		{"successful true", `{"channel":"/meta/connect","successful":true}`, true},
		{"successful false", `{"channel":"/meta/connect","successful":false}`, false},
		{"successful absent", `{"channel":"/meta/connect"}`, false},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			var m Message
			if err := json.Unmarshal([]byte(tc.body), &m); err != nil {
				t.Fatalf("unexpected decoding error %q", err)
			}
			if m.Successful != tc.want {
				t.Errorf("expected Successful = %v, got %v", tc.want, m.Successful)
			}
		})
	}
}

func TestMessage_GetAdvice(t *testing.T) {
	if got := (&Message{}).GetAdvice(); got.Reconnect != "" || got.Interval != 0 || got.Timeout != 0 {
		t.Errorf("expected the zero Advice for a message without advice, got %+v", got)
	}
	m := Message{Advice: &Advice{Reconnect: ReconnectRetry, Interval: 100}}
	if got := m.GetAdvice(); got.Reconnect != ReconnectRetry || got.Interval != 100 {
		t.Errorf("unexpected advice %+v", got)
	}
}

func TestAdvice_merge(t *testing.T) {
	base := Advice{Reconnect: ReconnectRetry, Timeout: 30000, Interval: 1000}
	testCases := []struct {
		name  string
		other *Advice
		want  Advice
	}{
		{
			"nil advice keeps everything",
			nil,
			base,
		},
		{
			"reconnect only",
			&Advice{Reconnect: ReconnectHandshake},
			Advice{Reconnect: ReconnectHandshake, Timeout: 30000},
		},
		{
			"timeout and interval",
			&Advice{Timeout: 5000, Interval: 250},
			Advice{Reconnect: ReconnectRetry, Timeout: 5000, Interval: 250},
		},
		{
			"hosts",
			&Advice{Interval: 1000, Hosts: []string{"backup.example.com"}},
			Advice{Reconnect: ReconnectRetry, Timeout: 30000, Interval: 1000, Hosts: []string{"backup.example.com"}},
		},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			got := base.merge(tc.other)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("unexpected merged advice (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAdvice_TimeoutAlwaysEncoded(t *testing.T) {
	encoded, err := json.Marshal(Advice{Timeout: 0})
	if err != nil {
		t.Fatalf("unexpected encoding error %q", err)
	}
	if want, got := `{"timeout":0}`, string(encoded); want != got {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestIsSessionUnknown(t *testing.T) {
	testCases := []struct {
		name    string
		message Message
		want    bool
	}{
		{
			"402 error code",
			Message{Channel: MetaConnect, Error: "402::Unknown client"},
			true,
		},
		{
			"handshake advice",
			Message{Channel: MetaConnect, Error: "session expired", Advice: &Advice{Reconnect: ReconnectHandshake}},
			true,
		},
		{
			"other error code",
			Message{Channel: MetaSubscribe, Error: "403:/foo:denied"},
			false,
		},
		{
			"unparseable error",
			Message{Channel: MetaConnect, Error: "oops"},
			false,
		},
		{
			"successful reply",
			Message{Channel: MetaConnect, Successful: true, Advice: &Advice{Reconnect: ReconnectHandshake}},
			false,
		},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			if got := IsSessionUnknown(tc.message); tc.want != got {
				t.Errorf("expected IsSessionUnknown() = %v, got %v", tc.want, got)
			}
		})
	}
}
