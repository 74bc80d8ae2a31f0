package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"receiptflow/internal/fault"
	"receiptflow/internal/models"
	"receiptflow/internal/strategy"

	"go.uber.org/zap"
)

type fakeStore struct {
	objects map[string][]byte
}

func (f *fakeStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	f.objects[key] = data
	return key, nil
}

func (f *fakeStore) Get(ctx context.Context, ref string) ([]byte, error) {
	data, ok := f.objects[ref]
	if !ok {
		return nil, errors.New("no such object")
	}
	return data, nil
}

func (f *fakeStore) Delete(ctx context.Context, ref string) error {
	delete(f.objects, ref)
	return nil
}

type fakeRecognizer struct {
	text       string
	confidence float64
	err        error
	calls      int
}

func (f *fakeRecognizer) Recognize(ctx context.Context, image []byte) (string, float64, error) {
	f.calls++
	return f.text, f.confidence, f.err
}

type fakeAnalyzer struct {
	receipt    models.RawReceipt
	imagesErr  error
	textErr    error
	imageCalls int
	textCalls  int
	lastImages int
	lastText   string
}

func (f *fakeAnalyzer) Name() string { return "fake" }

func (f *fakeAnalyzer) AnalyzeImages(ctx context.Context, images [][]byte) (models.RawReceipt, error) {
	f.imageCalls++
	f.lastImages = len(images)
	return f.receipt, f.imagesErr
}

func (f *fakeAnalyzer) AnalyzeText(ctx context.Context, ocrText string) (models.RawReceipt, error) {
	f.textCalls++
	f.lastText = ocrText
	return f.receipt, f.textErr
}

func goodReceipt() models.RawReceipt {
	return models.RawReceipt{
		StoreName:     "רמי לוי",
		Date:          "2026-08-14",
		PaymentMethod: "credit_card",
		Total:         87.50,
		Items: []models.RawItem{
			{Name: "חלב 3%", Price: 6.20, Quantity: 2, Subcategory: "dairy_eggs"},
		},
	}
}

func testDocument(refs ...string) models.Document {
	doc := models.NewDocument("user-1", refs, time.Now())
	return doc
}

func newTestInvoker(store *fakeStore, rec *fakeRecognizer, an *fakeAnalyzer) *Invoker {
	return NewInvoker(store, rec, an, time.Second, time.Second, 0.5, zap.NewNop())
}

func TestExtractDirectUsesAllRawImages(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{
		"raw/a.jpg": []byte("a"),
		"raw/b.jpg": []byte("b"),
	}}
	an := &fakeAnalyzer{receipt: goodReceipt()}
	inv := newTestInvoker(store, &fakeRecognizer{}, an)

	doc := testDocument("raw/a.jpg", "raw/b.jpg")
	res, err := inv.Extract(context.Background(), &doc, strategy.LLMDirect)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if an.imageCalls != 1 || an.lastImages != 2 {
		t.Errorf("expected one call with 2 images, got %d calls with %d images", an.imageCalls, an.lastImages)
	}
	if res.StrategyUsed != string(strategy.LLMDirect) {
		t.Errorf("strategy used: %s", res.StrategyUsed)
	}
	if res.Receipt.StoreName != "רמי לוי" {
		t.Errorf("store name: %q", res.Receipt.StoreName)
	}
}

func TestExtractOCRConcatenatesPages(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{
		"raw/a.jpg": []byte("a"),
		"raw/b.jpg": []byte("b"),
	}}
	rec := &fakeRecognizer{text: "שורה", confidence: 0.9}
	an := &fakeAnalyzer{receipt: goodReceipt()}
	inv := newTestInvoker(store, rec, an)

	doc := testDocument("raw/a.jpg", "raw/b.jpg")
	res, err := inv.Extract(context.Background(), &doc, strategy.OCRThenLLM)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.calls != 2 {
		t.Errorf("recognizer calls: got %d, want 2", rec.calls)
	}
	if an.textCalls != 1 {
		t.Errorf("analyzer text calls: got %d, want 1", an.textCalls)
	}
	if res.Confidence.Score != 0.9 {
		t.Errorf("confidence score: %f", res.Confidence.Score)
	}
	if res.RawText == "" || res.Confidence.RawTextLength == 0 {
		t.Error("raw text not propagated")
	}
}

func TestExtractPreprocessedPrefersComposite(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{
		"composite/u/d.jpg": []byte("c"),
	}}
	rec := &fakeRecognizer{text: "text", confidence: 0.8}
	an := &fakeAnalyzer{receipt: goodReceipt()}
	inv := newTestInvoker(store, rec, an)

	doc := testDocument("raw/a.jpg", "raw/b.jpg")
	doc.Composite = "composite/u/d.jpg"
	if _, err := inv.Extract(context.Background(), &doc, strategy.PreprocessOCRLLM); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.calls != 1 {
		t.Errorf("expected single OCR pass over composite, got %d", rec.calls)
	}
}

func TestExtractPreprocessedFallsBackToRawOnBestEffort(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{
		"raw/a.jpg":  []byte("a"),
		"prep/b.jpg": []byte("b"),
	}}
	rec := &fakeRecognizer{text: "text", confidence: 0.8}
	an := &fakeAnalyzer{receipt: goodReceipt()}
	inv := newTestInvoker(store, rec, an)

	doc := testDocument("raw/a.jpg", "raw/b.jpg")
	doc.Images[0].BestEffort = true
	doc.Images[1].Enhanced = "prep/b.jpg"
	if _, err := inv.Extract(context.Background(), &doc, strategy.PreprocessOCRLLM); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.calls != 2 {
		t.Errorf("recognizer calls: got %d, want 2", rec.calls)
	}
}

func TestExtractLowFieldCoverageIsRecoverable(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{"raw/a.jpg": []byte("a")}}
	an := &fakeAnalyzer{receipt: models.RawReceipt{StoreName: "רמי לוי"}} // rest missing
	inv := newTestInvoker(store, &fakeRecognizer{}, an)

	doc := testDocument("raw/a.jpg")
	_, err := inv.Extract(context.Background(), &doc, strategy.LLMDirect)
	if err == nil {
		t.Fatal("expected error for incomplete receipt")
	}
	if kind := fault.KindOf(err); kind != fault.KindRecoverableExtraction {
		t.Errorf("kind: got %s, want %s", kind, fault.KindRecoverableExtraction)
	}
}

func TestExtractLowOCRConfidenceIsRecoverable(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{"raw/a.jpg": []byte("a")}}
	rec := &fakeRecognizer{text: "noise", confidence: 0.2}
	an := &fakeAnalyzer{receipt: goodReceipt()}
	inv := newTestInvoker(store, rec, an)

	doc := testDocument("raw/a.jpg")
	_, err := inv.Extract(context.Background(), &doc, strategy.OCRThenLLM)
	if err == nil {
		t.Fatal("expected error for low OCR confidence")
	}
	if kind := fault.KindOf(err); kind != fault.KindRecoverableExtraction {
		t.Errorf("kind: got %s, want %s", kind, fault.KindRecoverableExtraction)
	}
	if an.textCalls != 0 {
		t.Error("model must not be called when OCR confidence is below threshold")
	}
}

func TestExtractMissingObjectIsStorageFault(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{}}
	inv := newTestInvoker(store, &fakeRecognizer{}, &fakeAnalyzer{receipt: goodReceipt()})

	doc := testDocument("raw/missing.jpg")
	_, err := inv.Extract(context.Background(), &doc, strategy.LLMDirect)
	if err == nil {
		t.Fatal("expected error for missing object")
	}
	if kind := fault.KindOf(err); kind != fault.KindStorage {
		t.Errorf("kind: got %s, want %s", kind, fault.KindStorage)
	}
}

func TestDecodeModelOutput(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		store   string
	}{
		{
			name:    "plain JSON",
			content: `{"store_name": "שופרסל", "total": 10}`,
			store:   "שופרסל",
		},
		{
			name:    "fenced JSON",
			content: "Here is the result:\n```json\n{\"store_name\": \"שופרסל\", \"total\": 10}\n```",
			store:   "שופרסל",
		},
		{
			name:    "prose around object",
			content: `The receipt data is {"store_name": "AM:PM"} as requested.`,
			store:   "AM:PM",
		},
		{
			name:    "no JSON at all",
			content: "I could not read this image.",
			wantErr: true,
		},
		{
			name:    "broken JSON",
			content: `{"store_name": "x", "total": }`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			receipt, err := decodeModelOutput("llm", tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if kind := fault.KindOf(err); kind != fault.KindRecoverableExtraction {
					t.Errorf("kind: got %s, want recoverable", kind)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeModelOutput: %v", err)
			}
			if receipt.StoreName != tt.store {
				t.Errorf("store name: got %q, want %q", receipt.StoreName, tt.store)
			}
		})
	}
}
