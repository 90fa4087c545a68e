package synthesizer

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/petrzlen/voiceclone-golang/pkg/audio_utils"
)

// OpenAiSampleRate - this I have measured by decodedMp3.SampleRate
const OpenAiSampleRate = 24000

// openAITTS uses the hosted OpenAI speech endpoint. It picks a stock voice and cannot
// clone the reference timbre, the reference audio is only validated by the gateway.
type openAITTS struct {
	client *openai.Client
	voice  openai.SpeechVoice
	speed  float64

	warnOnce sync.Once
}

func NewOpenAITTS(openAIAPIKey string, voice string) (Model, error) {
	if openAIAPIKey == "" {
		return nil, errors.New("OPEN_AI_API_KEY is not set")
	}
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &openAITTS{
		client: openai.NewClient(openAIAPIKey),
		voice:  openai.SpeechVoice(voice),
		speed:  1.0,
	}, nil
}

func (o *openAITTS) Generate(ctx context.Context, text string, reference Reference) ([]float32, int, error) {
	o.warnOnce.Do(func() {
		log.Warn().Str("reference_path", reference.Path).Msg("openai backend ignores the reference voice timbre")
	})
	requestStart := time.Now()

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          o.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          o.speed,
	})
	if err != nil {
		return nil, 0, errors.Wrap(err, "could not do audio/speech")
	}
	defer func() { dbg(resp.Close()) }()

	rawAudioBytes, err := io.ReadAll(resp)
	if err != nil {
		return nil, 0, errors.Wrap(err, "could not read response")
	}
	log.Debug().Dur("request_time", time.Since(requestStart)).Int("response_byte_size", len(rawAudioBytes)).Msg("audio/speech request done")

	buf, err := audio_utils.DecodeFromMp3(rawAudioBytes)
	if err != nil {
		return nil, 0, err
	}
	sampleRate := buf.Format.SampleRate
	if sampleRate <= 0 {
		sampleRate = OpenAiSampleRate
	}
	return audio_utils.DownmixToMono(buf), sampleRate, nil
}

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
	}
}
