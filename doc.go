// Package avload binds the FFmpeg shared libraries (libavutil, libavformat,
// libavcodec and libswresample) at runtime without cgo.
//
// A Loader locates each library, binds its symbol table with purego, reads
// the library versions and checks that the combination is a known FFmpeg
// release. The resulting Runtime exposes the bound functions plus decoders
// for the native structures whose layout changed between releases.
//
// # Supported Versions
//
//	avutil     56 - 60
//	avformat   58 - 62
//	avcodec    58 - 62
//	swresample  3 - 6
//
// Known releases are 4.x, 5.x, 6.x, 7.x and 8.x. Mixing majors from
// different releases is reported as a warning, or as an error when
// StrictVersions is set.
//
// # Native Structures
//
// Native records (AVCodecDescriptor, AVPixFmtDescriptor, AVStream,
// AVCodecParameters, AVFrame and others) are read through per-version
// overlays. Each overlay maps a library major to a Go mirror of the C
// layout and produces a version independent snapshot.
//
// # Configuration
//
// Library locations come from Config, which can be filled from the
// environment (AVLOAD_LIB_PATH, AVLOAD_AVCODEC_PATH, ...) or a config file
// through viper. Loader and native av_log messages are collected in a
// LogSink and mirrored to a zerolog logger.
//
// # RTP
//
// StreamPacketizer and StreamTrack turn demuxed packets into RTP packets
// with pion/rtp and publish them as a pion/webrtc local track.
package avload
