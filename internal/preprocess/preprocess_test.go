package preprocess

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"
	"time"

	"receiptflow/internal/fault"
	"receiptflow/internal/models"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

type memStore struct {
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.objects[key] = data
	return key, nil
}

func (m *memStore) Get(ctx context.Context, ref string) ([]byte, error) {
	data, ok := m.objects[ref]
	if !ok {
		return nil, errors.New("no such object")
	}
	return data, nil
}

func (m *memStore) Delete(ctx context.Context, ref string) error {
	delete(m.objects, ref)
	return nil
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 200, B: 200, A: 255})
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return img
}

func TestEnhanceClampsLargeImages(t *testing.T) {
	out, err := Enhance(jpegBytes(t, 900, 300), LevelBalanced, 400)
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	img := decode(t, out)
	if img.Bounds().Dx() != 400 {
		t.Errorf("width: got %d, want 400", img.Bounds().Dx())
	}
	if img.Bounds().Dy() >= 300 {
		t.Errorf("height not scaled down: %d", img.Bounds().Dy())
	}
}

func TestEnhanceKeepsSmallImages(t *testing.T) {
	out, err := Enhance(jpegBytes(t, 100, 80), LevelFast, 400)
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	img := decode(t, out)
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 80 {
		t.Errorf("dimensions changed: %v", img.Bounds())
	}
}

func TestEnhanceRejectsGarbage(t *testing.T) {
	if _, err := Enhance([]byte("not an image"), LevelBalanced, 400); err == nil {
		t.Fatal("garbage accepted")
	}
}

func TestParseLevel(t *testing.T) {
	for _, valid := range []string{"fast", "balanced", "quality"} {
		if _, err := ParseLevel(valid); err != nil {
			t.Errorf("ParseLevel(%s): %v", valid, err)
		}
	}
	if _, err := ParseLevel("extreme"); err == nil {
		t.Error("invalid level accepted")
	}
}

func TestPrepareEnhancesEveryImage(t *testing.T) {
	store := newMemStore()
	store.objects["raw/u/a.jpg"] = jpegBytes(t, 200, 300)
	store.objects["raw/u/b.jpg"] = jpegBytes(t, 200, 300)
	p := New(store, LevelBalanced, 2000, zap.NewNop())

	doc := models.NewDocument("u", []string{"raw/u/a.jpg", "raw/u/b.jpg"}, time.Now())
	out, err := p.Prepare(context.Background(), doc)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if out.State != models.PreprocessDone {
		t.Errorf("state: %s", out.State)
	}
	for _, ref := range out.Images {
		if ref.Enhanced == "" || ref.BestEffort {
			t.Errorf("image %s not enhanced", ref.Raw)
		}
		if !strings.HasPrefix(ref.Enhanced, "prep/") {
			t.Errorf("enhanced key: %s", ref.Enhanced)
		}
		if _, err := store.Get(context.Background(), ref.Enhanced); err != nil {
			t.Errorf("enhanced object missing: %v", err)
		}
	}
}

func TestPrepareDegradesSingleBadImage(t *testing.T) {
	store := newMemStore()
	store.objects["raw/u/ok.jpg"] = jpegBytes(t, 200, 300)
	store.objects["raw/u/bad.jpg"] = []byte("corrupted")
	p := New(store, LevelBalanced, 2000, zap.NewNop())

	doc := models.NewDocument("u", []string{"raw/u/ok.jpg", "raw/u/bad.jpg"}, time.Now())
	out, err := p.Prepare(context.Background(), doc)
	if err != nil {
		t.Fatalf("Prepare must not fail on one bad image: %v", err)
	}
	if out.State != models.PreprocessDegraded {
		t.Errorf("state: got %s, want degraded", out.State)
	}
	if out.Images[0].BestEffort || out.Images[0].Enhanced == "" {
		t.Error("good image degraded")
	}
	if !out.Images[1].BestEffort {
		t.Error("bad image not marked best effort")
	}
}

func TestPrepareMissingRawIsStorageFault(t *testing.T) {
	p := New(newMemStore(), LevelBalanced, 2000, zap.NewNop())
	doc := models.NewDocument("u", []string{"raw/u/gone.jpg"}, time.Now())
	_, err := p.Prepare(context.Background(), doc)
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := fault.KindOf(err); kind != fault.KindStorage {
		t.Errorf("kind: got %s, want storage", kind)
	}
}

func TestStitchStacksPagesTopToBottom(t *testing.T) {
	store := newMemStore()
	store.objects["raw/u/a.jpg"] = jpegBytes(t, 100, 150)
	store.objects["raw/u/b.jpg"] = jpegBytes(t, 200, 100)
	p := New(store, LevelBalanced, 2000, zap.NewNop())

	doc := models.NewDocument("u", []string{"raw/u/a.jpg", "raw/u/b.jpg"}, time.Now())
	out, err := p.Stitch(context.Background(), doc)
	if err != nil {
		t.Fatalf("Stitch: %v", err)
	}
	if out.Composite == "" {
		t.Fatal("composite reference not set")
	}

	data, err := store.Get(context.Background(), out.Composite)
	if err != nil {
		t.Fatalf("composite object: %v", err)
	}
	img := decode(t, data)
	if img.Bounds().Dx() != 200 {
		t.Errorf("composite width: got %d, want 200", img.Bounds().Dx())
	}
	// first page scales to width 200 keeping ratio (300 high), second adds 100
	if img.Bounds().Dy() != 400 {
		t.Errorf("composite height: got %d, want 400", img.Bounds().Dy())
	}
}

func TestStitchSkipsSingleImage(t *testing.T) {
	p := New(newMemStore(), LevelBalanced, 2000, zap.NewNop())
	doc := models.NewDocument("u", []string{"raw/u/a.jpg"}, time.Now())
	out, err := p.Stitch(context.Background(), doc)
	if err != nil {
		t.Fatalf("Stitch: %v", err)
	}
	if out.Composite != "" {
		t.Error("composite built for one-image document")
	}
}

func TestStitchErrorIsAdvisory(t *testing.T) {
	store := newMemStore()
	store.objects["raw/u/a.jpg"] = jpegBytes(t, 100, 100)
	// second page missing
	p := New(store, LevelBalanced, 2000, zap.NewNop())

	doc := models.NewDocument("u", []string{"raw/u/a.jpg", "raw/u/b.jpg"}, time.Now())
	out, err := p.Stitch(context.Background(), doc)
	if err == nil {
		t.Fatal("expected stitch error")
	}
	if out.Composite != "" {
		t.Error("composite set despite failure")
	}
}
