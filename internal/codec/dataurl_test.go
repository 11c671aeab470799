package codec

import "testing"

func TestParseDataURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    ImageSource
		wantErr bool
	}{
		{
			name: "png",
			url:  "data:image/png;base64,QUJD",
			want: ImageSource{MediaType: "image/png", Data: "QUJD"},
		},
		{
			name: "jpeg",
			url:  "data:image/jpeg;base64,QUJD",
			want: ImageSource{MediaType: "image/jpeg", Data: "QUJD"},
		},
		{
			name: "missing media type defaults to png",
			url:  "data:;base64,QUJD",
			want: ImageSource{MediaType: "image/png", Data: "QUJD"},
		},
		{
			name:    "not a data URL",
			url:     "https://example.com/cat.png",
			wantErr: true,
		},
		{
			name:    "no comma",
			url:     "data:image/png;base64",
			wantErr: true,
		},
		{
			name:    "not base64",
			url:     "data:text/plain,hello",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDataURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDataURL: %v", err)
			}
			if got.MediaType != tt.want.MediaType || got.Data != tt.want.Data {
				t.Errorf("got %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestBuildRoundTrip(t *testing.T) {
	url := BuildDataURL("image/webp", "QUJD")
	src, err := ParseDataURL(url)
	if err != nil {
		t.Fatalf("ParseDataURL: %v", err)
	}
	if src.MediaType != "image/webp" || src.Data != "QUJD" {
		t.Errorf("round trip = %+v", *src)
	}
}

func TestMarkup(t *testing.T) {
	if got := MarkdownImage("generated image", "data:image/png;base64,QUJD"); got != "![generated image](data:image/png;base64,QUJD)" {
		t.Errorf("MarkdownImage = %q", got)
	}
	if got := VideoMarkup("https://example.com/v.mp4"); got != `<video controls src="https://example.com/v.mp4"></video>` {
		t.Errorf("VideoMarkup = %q", got)
	}
}
