package media_test

import (
	"encoding/json"
	"errors"
	"math/rand"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/studyflow/pkg/media"
)

var _ = Describe("Reference", func() {
	Describe("Encode and Decode", func() {
		It("round trips random payloads", func() {
			rng := rand.New(rand.NewSource(42))
			for i := 0; i < 200; i++ {
				b := make([]byte, rng.Intn(512))
				rng.Read(b)

				ref, err := media.Encode(b, "application/octet-stream")
				Expect(err).NotTo(HaveOccurred())

				data, mimeType, err := media.Decode(ref.String())
				Expect(err).NotTo(HaveOccurred())
				Expect(data).To(Equal(b))
				Expect(mimeType).To(Equal("application/octet-stream"))
			}
		})

		It("round trips an empty payload", func() {
			ref, err := media.Encode(nil, "text/plain")
			Expect(err).NotTo(HaveOccurred())
			Expect(ref.String()).To(Equal("data:text/plain;base64,"))

			data, mimeType, err := media.Decode(ref.String())
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(BeEmpty())
			Expect(mimeType).To(Equal("text/plain"))
		})

		It("round trips binary-unsafe content", func() {
			b := []byte{0x00, ',', ';', '\n', 0xff, 0xfe, '=', '='}
			ref, err := media.Encode(b, "application/pdf")
			Expect(err).NotTo(HaveOccurred())

			data, _, err := media.Decode(ref.String())
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal(b))
		})

		It("keeps MIME parameters verbatim", func() {
			ref, err := media.Encode([]byte("ogg"), "audio/webm;codecs=opus")
			Expect(err).NotTo(HaveOccurred())

			_, mimeType, err := media.Decode(ref.String())
			Expect(err).NotTo(HaveOccurred())
			Expect(mimeType).To(Equal("audio/webm;codecs=opus"))
			Expect(ref.MediaType()).To(Equal("audio/webm"))
			Expect(ref.IsAudio()).To(BeTrue())
		})

		It("does not alias the caller's buffer", func() {
			b := []byte("abc")
			ref, err := media.Encode(b, "text/plain")
			Expect(err).NotTo(HaveOccurred())

			b[0] = 'z'
			Expect(ref.Data()).To(Equal([]byte("abc")))
		})
	})

	Describe("MIME validation", func() {
		DescribeTable("rejects empty or malformed MIME types",
			func(mimeType string) {
				_, err := media.Encode([]byte("x"), mimeType)

				var unsupported *media.UnsupportedError
				Expect(errors.As(err, &unsupported)).To(BeTrue())
			},
			Entry("empty", ""),
			Entry("blank", "   "),
			Entry("no subtype", "image"),
			Entry("empty subtype", "image/"),
			Entry("comma", "image/png,x"),
			Entry("bad parameter", "image/png;;"),
		)

		It("does not sniff the content", func() {
			ref, err := media.Encode([]byte("%PDF-1.7"), "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(ref.IsImage()).To(BeTrue())
		})
	})

	Describe("Parse", func() {
		DescribeTable("rejects malformed references",
			func(s string) {
				_, err := media.Parse(s)
				Expect(errors.Is(err, media.ErrMalformedReference)).To(BeTrue())
			},
			Entry("wrong scheme", "http://example.com/a.png"),
			Entry("no separator", "data:image/png;base64"),
			Entry("not base64", "data:image/png,abc"),
			Entry("bad payload", "data:image/png;base64,***"),
			Entry("empty mime", "data:;base64,AAAA"),
		)
	})

	Describe("JSON", func() {
		It("marshals as the data URI string", func() {
			ref, err := media.Encode([]byte("hi"), "text/plain")
			Expect(err).NotTo(HaveOccurred())

			b, err := json.Marshal(ref)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(b)).To(Equal(`"data:text/plain;base64,aGk="`))

			var back media.Reference
			Expect(json.Unmarshal(b, &back)).To(Succeed())
			Expect(back.Data()).To(Equal([]byte("hi")))
		})

		It("uses null for the zero reference", func() {
			b, err := json.Marshal(struct {
				Ref media.Reference `json:"ref"`
			}{})
			Expect(err).NotTo(HaveOccurred())
			Expect(string(b)).To(Equal(`{"ref":null}`))

			var back media.Reference
			Expect(json.Unmarshal([]byte("null"), &back)).To(Succeed())
			Expect(back.IsZero()).To(BeTrue())
		})
	})

	Describe("EncodeFile", func() {
		It("derives the MIME type from the extension", func() {
			path := filepath.Join(GinkgoT().TempDir(), "notes.pdf")
			Expect(os.WriteFile(path, []byte("%PDF"), 0o600)).To(Succeed())

			ref, err := media.EncodeFile(path, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(ref.IsPDF()).To(BeTrue())
			Expect(ref.Data()).To(Equal([]byte("%PDF")))
		})

		It("fails for an unknown extension without a declared type", func() {
			path := filepath.Join(GinkgoT().TempDir(), "blob.zzqq")
			Expect(os.WriteFile(path, []byte("x"), 0o600)).To(Succeed())

			_, err := media.EncodeFile(path, "")
			var unsupported *media.UnsupportedError
			Expect(errors.As(err, &unsupported)).To(BeTrue())
		})
	})
})
