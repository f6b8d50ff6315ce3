// Package main provides localization for the frameline CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Root command
		"Decode, cache and export multi-track video timelines": "マルチトラック動画タイムラインのデコード・キャッシュ・書き出し",

		// Commands
		"Export a timeline to an MP4 file":                     "タイムラインをMP4ファイルに書き出し",
		"Inspect a media file and report its codec and metadata": "メディアファイルを調査しコーデックとメタデータを表示",

		// Common flags
		"Configuration YAML file":               "設定YAMLファイル",
		"Helper process address (host:port)":    "ヘルパープロセスのアドレス（host:port）",
		"Helper authentication token":           "ヘルパー認証トークン",
		"Path to ffmpeg executable":             "ffmpeg実行ファイルのパス",
		"Route every clip through the helper":   "全クリップをヘルパー経由でデコード",
		"Never connect to the helper process":   "ヘルパープロセスに接続しない",
		"Log level (debug, info, warn, error)":  "ログレベル（debug, info, warn, error）",
		"Suppress all log output":               "全てのログ出力を抑制",

		// Export flags
		"Timeline YAML file":                "タイムラインYAMLファイル",
		"Output MP4 file path":              "出力MP4ファイルパス",
		"Output video width":                "出力動画の幅",
		"Output video height":               "出力動画の高さ",
		"Output frame rate":                 "出力フレームレート",
		"Output bitrate in bits/sec":        "出力ビットレート（ビット/秒）",
		"Output codec":                      "出力コーデック",
		"Prefetch radius in frames":         "先読み半径（フレーム数）",
		"Enable diagnostics output":         "診断出力を有効化",
		"Directory for diagnostics output":  "診断出力のディレクトリ",

		// Runtime messages
		"Interrupted, shutting down...":                          "中断されました。シャットダウン中...",
		"Connected to helper at %s":                              "ヘルパー %s に接続しました",
		"Helper at %s unavailable, decoding in-process only: %s": "ヘルパー %s に接続できません。プロセス内デコードのみで続行します: %s",
		"Exporting %d clips to %s...":                            "%d クリップを %s に書き出し中...",
		"Output saved to %s (%d frames, %d bytes)":               "出力を %s に保存しました（%d フレーム, %d バイト）",
		"%d of %d frames were replaced with placeholders":        "%d / %d フレームがプレースホルダに置き換えられました",
		"Failed to write diagnostics: %s":                        "診断出力の書き込みに失敗しました: %s",

		// Error messages
		"timeline file is required (--timeline)":          "タイムラインファイルが必要です（--timeline）",
		"output path is required (--output)":              "出力パスが必要です（--output）",
		"export requires a helper connection for encoding": "書き出しにはエンコード用のヘルパー接続が必要です",
		"a media file argument is required":               "メディアファイル引数が必要です",

		// Probe output
		"File: %s":           "ファイル: %s",
		"Backend: %s":        "バックエンド: %s",
		"Codec: %s":          "コーデック: %s",
		"Size: %dx%d":        "サイズ: %dx%d",
		"Frame rate: %.3f fps": "フレームレート: %.3f fps",
		"Frames: %d (%.2fs)": "フレーム数: %d（%.2f秒）",
	})
}
