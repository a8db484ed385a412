// Package transcribe defines the transcription backend interface and its
// implementations. The HTTP backend posts multipart form data with audio
// and metadata to a Whisper-style service; the OpenAI backend speaks the
// OpenAI audio API. Both perform exactly one attempt per request.
package transcribe
