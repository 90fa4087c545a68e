package main

import (
	"flag"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/petrzlen/voiceclone-golang/internal/utils"
	"github.com/petrzlen/voiceclone-golang/pkg/audio_utils"
)

// Writes the mono 16-bit wav the generation model gets to hear for a reference file,
// handy to check what an uploaded mp3 or stereo flac turns into.
func main() {
	in := flag.String("in", "", "reference audio (wav, mp3 or flac)")
	out := flag.String("out", "output/reference-mono.wav", "where to write the mono wav")
	flag.Parse()
	utils.SetupZerolog("info")

	if *in == "" {
		flag.Usage()
		os.Exit(2)
	}

	fs := afero.NewOsFs()
	buf, err := audio_utils.DecodeFile(fs, *in)
	ftl(err)
	log.Info().Int("sample_rate", buf.Format.SampleRate).Int("channels", buf.Format.NumChannels).Int("bit_depth", buf.SourceBitDepth).Int("frames", buf.NumFrames()).Msg("decoded reference audio")

	mono := audio_utils.FloatToInt16(audio_utils.DownmixToMono(buf))
	wavData, err := audio_utils.Int16SamplesToWav(mono, buf.Format.SampleRate)
	ftl(err)

	ftl(fs.MkdirAll(filepath.Dir(*out), 0o755))
	ftl(afero.WriteFile(fs, *out, wavData, 0o644))
	log.Info().Str("out", *out).Int("samples", len(mono)).Msg("mono reference written")
}

func ftl(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("sth essential failed")
		debug.PrintStack()
	}
}
