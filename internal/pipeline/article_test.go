package pipeline

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/newsgrid/enrichd/internal/extract"
	"github.com/newsgrid/enrichd/internal/model"
)

type fakeScraper struct {
	result *extract.Result
	err    error
}

func (f *fakeScraper) Extract(ctx context.Context, rawURL string) (*extract.Result, error) {
	return f.result, f.err
}

type fixedDetector string

func (d fixedDetector) Detect(text string) string { return string(d) }

type fakeTranslator struct {
	out string
	ok  bool
}

func (f *fakeTranslator) Translate(ctx context.Context, text, source, target string, proxies []string) (string, bool) {
	return f.out, f.ok
}

type fakeTagger struct{ bundle model.EntityBundle }

func (f *fakeTagger) Tag(ctx context.Context, text string) model.EntityBundle { return f.bundle }

type fakeGeo struct {
	out   []model.GeoEntity
	panic bool
}

func (f *fakeGeo) Tag(title, content string, locs []model.Entity) []model.GeoEntity {
	if f.panic {
		panic("geo blew up")
	}
	return f.out
}

type fakeFinder struct{ out []string }

func (f *fakeFinder) Find(ctx context.Context, res *model.ExtractResult, country string) []string {
	return f.out
}

type fakeDownloader struct {
	served []string
	calls  int
}

func (f *fakeDownloader) Download(ctx context.Context, date, fp, id string, candidates []string) []string {
	f.calls++
	return f.served
}

type staticProxies []string

func (s staticProxies) Snapshot() []string { return []string(s) }

func englishPipeline() (*ArticlePipeline, *fakeDownloader) {
	dl := &fakeDownloader{served: []string{"http://blob.local/img_0.jpg"}}
	return &ArticlePipeline{
		Scraper: &fakeScraper{result: &extract.Result{
			Title:    "Brazil hosts COP30 in Belém",
			Content:  "Brazil prepares for COP30. Leaders arrive in Belém. The summit starts soon.",
			Hostname: "example.com",
		}},
		Detector:   fixedDetector("en"),
		Translator: &fakeTranslator{out: "should not be used", ok: true},
		Tagger:     &fakeTagger{bundle: model.EntityBundle{Event: []model.Entity{{Text: "COP30", Score: 0.95}}}},
		Geo:        &fakeGeo{out: []model.GeoEntity{{Name: "Brazil", Alpha2: "BR", Alpha3: "BRA", Count: 3, AvgScore: 1.0}}},
		Finder:     &fakeFinder{out: []string{"https://img.example/a.jpg"}},
		Downloader: dl,
		Proxies:    staticProxies{},
		Toggles:    Toggles{Geotagging: true, ImageSearch: true, ImageDownload: true},
	}, dl
}

func entry() model.FeedEntry {
	return model.FeedEntry{ID: "a1", FlashpointID: "fp1", URL: "https://example.com/news/x", Title: "Brazil hosts COP30 in Belém"}
}

func TestProcessHappyPath(t *testing.T) {
	p, dl := englishPipeline()
	got := p.Process(context.Background(), "2026-08-26", entry())

	if got.Status != model.StatusCompleted {
		t.Fatalf("status = %s, errors = %v", got.Status, got.Errors)
	}
	res := got.EnrichedData
	if res == nil {
		t.Fatal("enriched data missing")
	}
	if res.ID != "a1" || res.ParentID != "fp1" {
		t.Fatalf("identity = %s/%s", res.ID, res.ParentID)
	}
	if res.Language != "en" {
		t.Fatalf("language = %q", res.Language)
	}
	if res.TitleEn != res.Title {
		t.Fatalf("title_en = %q, want copied title for english", res.TitleEn)
	}
	if len(res.Entities.Event) == 0 || res.Entities.Event[0].Text != "COP30" {
		t.Fatalf("entities = %+v", res.Entities)
	}
	if len(res.GeoEntities) == 0 || res.GeoEntities[0].Alpha2 != "BR" {
		t.Fatalf("geo = %+v", res.GeoEntities)
	}
	if dl.calls != 1 || !reflect.DeepEqual(res.Images, []string{"http://blob.local/img_0.jpg"}) {
		t.Fatalf("images = %v (downloads: %d)", res.Images, dl.calls)
	}

	wantSteps := []string{
		StateNew, StateScraped, StateLangSet, StateTitleTranslated,
		StateEntitiesTagged, StateGeotagged, StateImagesFound,
		StateImagesDownloaded, StateCompleted,
	}
	if !reflect.DeepEqual(got.ProcessingSteps, wantSteps) {
		t.Fatalf("steps = %v", got.ProcessingSteps)
	}
}

func TestProcessScrapeFailureIsFatal(t *testing.T) {
	p, _ := englishPipeline()
	p.Scraper = &fakeScraper{err: errors.New("both stages failed")}
	got := p.Process(context.Background(), "2026-08-26", entry())

	if got.Status != model.StatusFailed {
		t.Fatalf("status = %s", got.Status)
	}
	if got.EnrichedData != nil {
		t.Fatal("enriched data should be nil on scrape failure")
	}
	if len(got.Errors) == 0 || !strings.Contains(got.Errors[0], "scrape") {
		t.Fatalf("errors = %v", got.Errors)
	}
}

func TestProcessNonEnglishTranslatesTitle(t *testing.T) {
	p, _ := englishPipeline()
	p.Detector = fixedDetector("fr")
	p.Translator = &fakeTranslator{out: "Paris hosts the summit", ok: true}
	got := p.Process(context.Background(), "2026-08-26", entry())

	if got.EnrichedData.Language != "fr" {
		t.Fatalf("language = %q", got.EnrichedData.Language)
	}
	if got.EnrichedData.TitleEn != "Paris hosts the summit" {
		t.Fatalf("title_en = %q", got.EnrichedData.TitleEn)
	}
}

func TestProcessTranslationFailureLeavesTitleEmpty(t *testing.T) {
	p, _ := englishPipeline()
	p.Detector = fixedDetector("fr")
	p.Translator = &fakeTranslator{ok: false}
	got := p.Process(context.Background(), "2026-08-26", entry())

	if got.Status != model.StatusCompleted {
		t.Fatalf("status = %s, soft failure must not fail the article", got.Status)
	}
	if got.EnrichedData.TitleEn != "" {
		t.Fatalf("title_en = %q", got.EnrichedData.TitleEn)
	}
}

func TestProcessGeoPanicFailsSoft(t *testing.T) {
	p, _ := englishPipeline()
	p.Geo = &fakeGeo{panic: true}
	got := p.Process(context.Background(), "2026-08-26", entry())

	if got.Status != model.StatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if len(got.EnrichedData.GeoEntities) != 0 {
		t.Fatalf("geo = %v, want empty after panic", got.EnrichedData.GeoEntities)
	}
	if len(got.EnrichedData.Entities.Event) == 0 {
		t.Fatal("earlier stage results lost")
	}
}

func TestProcessDisabledStagesSkipped(t *testing.T) {
	p, dl := englishPipeline()
	p.Toggles = Toggles{}
	got := p.Process(context.Background(), "2026-08-26", entry())

	if got.Status != model.StatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if len(got.EnrichedData.GeoEntities) != 0 || len(got.EnrichedData.Images) != 0 {
		t.Fatalf("disabled stages produced output: %+v", got.EnrichedData)
	}
	if dl.calls != 0 {
		t.Fatalf("downloader called %d times", dl.calls)
	}
}

func TestProcessDownloadDisabledKeepsCandidates(t *testing.T) {
	p, dl := englishPipeline()
	p.Toggles.ImageDownload = false
	got := p.Process(context.Background(), "2026-08-26", entry())

	if dl.calls != 0 {
		t.Fatal("downloader called while disabled")
	}
	if !reflect.DeepEqual(got.EnrichedData.Images, []string{"https://img.example/a.jpg"}) {
		t.Fatalf("images = %v, want raw candidates", got.EnrichedData.Images)
	}
}

func TestSampleSentences(t *testing.T) {
	content := "First sentence here. Second one follows! Third asks? Fourth is ignored. Fifth too."
	got := sampleSentences(content, 3)
	want := []string{"First sentence here", "Second one follows", "Third asks"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("samples = %v, want %v", got, want)
	}
}

type votingDetector struct{ seq []string }

func (d *votingDetector) Detect(text string) string {
	if len(d.seq) == 0 {
		return ""
	}
	lang := d.seq[0]
	d.seq = d.seq[1:]
	return lang
}

func TestDetectLanguageModalVote(t *testing.T) {
	p := &ArticlePipeline{Detector: &votingDetector{seq: []string{"pt", "en", "pt", "pt"}}}
	got := p.detectLanguage("Título do artigo", "Uma frase. Outra frase. Mais uma frase.")
	if got != "pt" {
		t.Fatalf("language = %q, want modal pt", got)
	}
}

func TestDetectLanguageAllEmpty(t *testing.T) {
	p := &ArticlePipeline{Detector: fixedDetector("")}
	if got := p.detectLanguage("t", "some content here."); got != "" {
		t.Fatalf("language = %q, want empty", got)
	}
}
