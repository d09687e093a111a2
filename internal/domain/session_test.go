package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestPanelOpenForSearchesOnce(t *testing.T) {
	var p PanelState
	step := &RoadmapNode{Name: "Learn Python"}

	req, search := p.OpenFor(step)
	if !search || req.Query != "Learn Python" || req.Seq != 1 {
		t.Fatalf("first open should search, got %+v %v", req, search)
	}
	if _, search := p.OpenFor(&RoadmapNode{Name: "Learn Python"}); search {
		t.Fatalf("reopening same step name must not search again")
	}

	req, search = p.OpenFor(&RoadmapNode{Name: "Learn SQL"})
	if !search || req.Seq != 2 {
		t.Fatalf("switching step should search with new seq, got %+v %v", req, search)
	}
}

func TestPanelOpenForEmptyNameSkipsSearch(t *testing.T) {
	var p PanelState
	if _, search := p.OpenFor(&RoadmapNode{Title: "Section"}); search {
		t.Fatalf("step without name must not search")
	}
	if !p.Open {
		t.Fatalf("panel should be open")
	}
}

func TestPanelApplySearchDiscardsStale(t *testing.T) {
	var p PanelState
	first, _ := p.OpenFor(&RoadmapNode{Name: "A"})
	second, _ := p.OpenFor(&RoadmapNode{Name: "B"})

	if p.ApplySearch(first, []SearchHit{{Article: Article{ID: 1, Name: "old"}}}, nil) {
		t.Fatalf("stale response must be discarded")
	}
	if !p.ApplySearch(second, []SearchHit{{Article: Article{ID: 2, Name: "new"}}}, nil) {
		t.Fatalf("latest response must be applied")
	}
	if len(p.Articles) != 1 || p.Articles[0].Article.ID != 2 {
		t.Fatalf("unexpected articles: %+v", p.Articles)
	}
}

func TestPanelApplySearchAfterClose(t *testing.T) {
	var p PanelState
	req, _ := p.OpenFor(&RoadmapNode{Name: "A"})
	p.Close()
	if p.ApplySearch(req, []SearchHit{{Article: Article{ID: 1, Name: "late"}}}, nil) {
		t.Fatalf("response after close must be discarded")
	}
	if p.Step != nil || p.Open {
		t.Fatalf("close should clear step")
	}
}

func TestPanelApplySearchError(t *testing.T) {
	var p PanelState
	req, _ := p.OpenFor(&RoadmapNode{Name: "A"})
	if !p.ApplySearch(req, nil, errors.New("down")) {
		t.Fatalf("error result for latest request must be applied")
	}
	if p.Error != SearchFailedText || len(p.Articles) != 0 {
		t.Fatalf("unexpected panel: %+v", p)
	}
}

func TestSessionApplyAndReset(t *testing.T) {
	sess := NewSession("s1")
	if sess.Bound() {
		t.Fatalf("new session must be empty")
	}
	sess.LastError = "previous"
	sess.Apply(&RoadmapResult{ID: "r1", Structure: &RoadmapNode{Title: "Roadmap", Steps: []*RoadmapNode{{Name: "x"}}}})
	if !sess.Bound() || sess.LastError != "" {
		t.Fatalf("apply should bind and clear error: %+v", sess)
	}
	if sess.Tree.Steps[0].Key == "" {
		t.Fatalf("apply should assign keys")
	}

	sess.Input = "draft"
	sess.Panel.OpenFor(sess.Tree.Steps[0])
	sess.Reset()
	if sess.Bound() || sess.Tree != nil || sess.Input != "" || sess.Panel.Open {
		t.Fatalf("reset should clear everything: %+v", sess)
	}
}

func TestPanelStepKeySurvivesJSONRoundTrip(t *testing.T) {
	tree, err := DecodeRoadmap([]byte(`{"title":"Roadmap","steps":[{"name":"Learn Python"},{"name":"Learn SQL"}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var p PanelState
	p.OpenFor(tree.Steps[1])
	if p.StepKey == "" || p.StepKey != tree.Steps[1].Key {
		t.Fatalf("step key not recorded: %q", p.StepKey)
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var restored PanelState
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if restored.Step == nil || restored.Step.Key != "" {
		t.Fatalf("node keys are not serialized, got %+v", restored.Step)
	}

	restored.Restore(tree)
	if restored.Step != tree.Steps[1] {
		t.Fatalf("selected step should point back into the tree")
	}

	restored.Close()
	if restored.StepKey != "" {
		t.Fatalf("close should clear the step key")
	}
}
