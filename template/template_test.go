package template

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/idev006/MTYoutubeAutoPost/task"
)

func TestGenerateTitle(t *testing.T) {
	got := GenerateTitle("ABC123", "Great Shirt", "Blue", 3)
	want := "ABC123-Great Shirt-Blue ep.3"
	if got != want {
		t.Errorf("GenerateTitle() = %q, want %q", got, want)
	}
}

func TestGenerateTitle_Truncation(t *testing.T) {
	longName := "A very very very very very very long product name"
	longDescr := strings.Repeat("description ", 10)

	got := GenerateTitle("ABC123", longName, longDescr, 2)

	if len(got) > 100 {
		t.Errorf("GenerateTitle() length = %d, want <= 100", len(got))
	}
	if !strings.HasPrefix(got, "ABC123") {
		t.Errorf("GenerateTitle() = %q, want prod code prefix preserved", got)
	}
	if !strings.HasSuffix(got, " ep.2") {
		t.Errorf("GenerateTitle() = %q, want episode suffix preserved", got)
	}
}

func TestGenerateTitle_ThaiTruncationStaysValidUTF8(t *testing.T) {
	name := strings.Repeat("ก", 40)
	got := GenerateTitle("ABC123", name, "เสื้อผ้าฝ้ายสีน้ำเงินใส่สบายมากสำหรับหน้าร้อนและทุกโอกาสสำคัญของคุณ", 2)

	if !utf8.ValidString(got) {
		t.Fatalf("GenerateTitle() = %q, not valid UTF-8", got)
	}
	if n := utf8.RuneCountInString(got); n > 100 {
		t.Errorf("GenerateTitle() length = %d runes, want <= 100", n)
	}
	if !strings.HasPrefix(got, "ABC123-") || !strings.HasSuffix(got, " ep.2") {
		t.Errorf("GenerateTitle() = %q, want code prefix and episode suffix", got)
	}
}

func TestGenerateDescription_ThaiCapStaysValidUTF8(t *testing.T) {
	long := strings.Repeat("ข้อความทดสอบ", 600)
	got := GenerateDescription(long, nil, "", nil)

	if !utf8.ValidString(got) {
		t.Fatal("GenerateDescription() is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(got); n > 5000 {
		t.Errorf("GenerateDescription() length = %d runes, want <= 5000", n)
	}
}

func TestGenerateTitle_TruncatedTitleStillParses(t *testing.T) {
	got := GenerateTitle("XYZ999", strings.Repeat("name", 30), "descr", 7)

	code, ep, ok := ParseTitle(got)
	if !ok {
		t.Fatalf("ParseTitle(%q) did not match", got)
	}
	if code != "XYZ999" || ep != 7 {
		t.Errorf("ParseTitle(%q) = (%q, %d), want (XYZ999, 7)", got, code, ep)
	}
}

func TestParseTitle(t *testing.T) {
	tests := []struct {
		title    string
		wantCode string
		wantEp   int
		wantOK   bool
	}{
		{"ABC123-Great Shirt-Blue ep.3", "ABC123", 3, true},
		{"ABC123-Great Shirt-Blue", "ABC123", 1, true},
		{"ABC123-Shirt EP.12", "ABC123", 12, true},
		{"ABC123-Shirt ep.5 (restock)", "ABC123", 5, true},
		{"no separator here", "", 0, false},
		{"-leading dash ep.2", "", 0, false},
	}

	for _, tt := range tests {
		code, ep, ok := ParseTitle(tt.title)
		if ok != tt.wantOK {
			t.Errorf("ParseTitle(%q) ok = %v, want %v", tt.title, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if code != tt.wantCode || ep != tt.wantEp {
			t.Errorf("ParseTitle(%q) = (%q, %d), want (%q, %d)", tt.title, code, ep, tt.wantCode, tt.wantEp)
		}
	}
}

func TestGenerateTags_Dedup(t *testing.T) {
	got := GenerateTags([]string{"shirt", "Blue", " shirt ", "SHIRT"}, []string{"blue", "cotton"})

	want := []string{"shirt", "Blue", "cotton"}
	if len(got) != len(want) {
		t.Fatalf("GenerateTags() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("GenerateTags()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestGenerateTags_Limits(t *testing.T) {
	var many []string
	for i := 0; i < 50; i++ {
		many = append(many, strings.Repeat("x", 20)+string(rune('a'+i%26))+strings.Repeat("y", i%7))
	}

	got := GenerateTags(many, nil)

	if len(got) > 30 {
		t.Errorf("GenerateTags() returned %d tags, want <= 30", len(got))
	}
	total := 0
	for _, tag := range got {
		total += len(tag) + 1
	}
	if total > 500 {
		t.Errorf("GenerateTags() total chars = %d, want <= 500", total)
	}
}

func TestGenerateDescription(t *testing.T) {
	urls := []task.AffiliateURL{
		{Label: "Shopee", URL: "https://shopee.example/p/1", IsPrimary: true},
		{Label: "Lazada", URL: "https://lazada.example/p/1"},
	}

	got := GenerateDescription("A fine shirt.", urls, "SAVE10", []string{"shirt", "blue cotton"})

	for _, want := range []string{
		"A fine shirt.",
		"🛒 Shopee: https://shopee.example/p/1",
		"🔗 Lazada: https://lazada.example/p/1",
		"SAVE10",
		"#shirt",
		"#bluecotton",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("GenerateDescription() missing %q in:\n%s", want, got)
		}
	}
}

func TestGenerateDescription_Cap(t *testing.T) {
	got := GenerateDescription(strings.Repeat("long text ", 1000), nil, "", nil)
	if len(got) > 5000 {
		t.Errorf("GenerateDescription() length = %d, want <= 5000", len(got))
	}
}
