package fingerprint

import (
	"encoding/json"
	"testing"
)

func TestSumIgnoresKeyOrderAndWhitespace(t *testing.T) {
	a := json.RawMessage(`{"score":72,"rating":"greed","tickers":["AAPL","TSLA"]}`)
	b := json.RawMessage(`{
		"tickers": ["AAPL", "TSLA"],
		"rating":  "greed",
		"score":   72
	}`)

	if Sum(a) != Sum(b) {
		t.Fatalf("expected identical digests for reordered keys: %s vs %s", Sum(a), Sum(b))
	}
}

func TestSumNestedObjects(t *testing.T) {
	a := json.RawMessage(`{"outer":{"x":1,"y":[{"b":2,"a":1}]}}`)
	b := json.RawMessage(`{"outer":{"y":[{"a":1,"b":2}],"x":1}}`)

	if Sum(a) != Sum(b) {
		t.Fatal("nested key order should not affect the digest")
	}
}

func TestSumDetectsValueChange(t *testing.T) {
	a := json.RawMessage(`{"score":72}`)
	b := json.RawMessage(`{"score":73}`)

	if Sum(a) == Sum(b) {
		t.Fatal("different values must produce different digests")
	}
}

func TestSumArrayOrderSignificant(t *testing.T) {
	a := json.RawMessage(`{"tickers":["AAPL","TSLA"]}`)
	b := json.RawMessage(`{"tickers":["TSLA","AAPL"]}`)

	if Sum(a) == Sum(b) {
		t.Fatal("array element order carries meaning and must change the digest")
	}
}

func TestSumInvalidJSONIsDeterministic(t *testing.T) {
	raw := json.RawMessage(`not json at all`)

	first := Sum(raw)
	second := Sum(raw)
	if first != second {
		t.Fatalf("digest for invalid JSON changed between calls: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(first))
	}
}
