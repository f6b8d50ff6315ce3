package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Scheduler
		"Opening clip %s":                      "クリップ %s を開いています",
		"Clip %s ready: %d frames at %.2f fps": "クリップ %s 準備完了: %d フレーム, %.2f fps",
		"Clip %s failed to open: %s":           "クリップ %s を開けませんでした: %s",
		"Clip %s decode failed: %s":            "クリップ %s のデコードに失敗しました: %s",
		"Clip %s did not open: %s":             "クリップ %s が開きませんでした: %s",
		"Skipping clip %s: %s":                 "クリップ %s をスキップします: %s",
		"Initialized %d of %d clips":           "%d / %d クリップを初期化しました",
		"Playhead moved to %.3fs":              "再生ヘッドを %.3f 秒へ移動しました",
		"Evicted %d frames outside window":     "ウィンドウ外の %d フレームを破棄しました",
		"Decode scheduler stopped":             "デコードスケジューラを停止しました",

		// Backends
		"Codec probe failed for %s, deferring to helper: %s":             "%s のコーデック判定に失敗しました。ヘルパーに委譲します: %s",
		"In-process open failed, retrying via helper: %s":                "プロセス内デコーダで開けませんでした。ヘルパーで再試行します: %s",
		"In-process decode of frame %d failed, retrying via helper: %s":  "フレーム %d のプロセス内デコードに失敗しました。ヘルパーで再試行します: %s",

		// Helper connection
		"Connecting to helper at %s":                     "ヘルパー %s へ接続中",
		"Helper connection ready":                        "ヘルパー接続の準備ができました",
		"Helper connection lost: %s":                     "ヘルパー接続が切断されました: %s",
		"Helper connection re-established":               "ヘルパー接続を再確立しました",
		"Helper reconnect failed: %s":                    "ヘルパーへの再接続に失敗しました: %s",
		"Dropping malformed helper message: %s":          "不正なヘルパーメッセージを破棄しました: %s",
		"Dropping malformed helper response: %s":         "不正なヘルパー応答を破棄しました: %s",
		"Dropping malformed progress envelope: %s":       "不正な進捗エンベロープを破棄しました: %s",
		"Dropping helper message with unknown type 0x%02x": "不明な種別 0x%02x のヘルパーメッセージを破棄しました",
		"Dropping response for unknown command id %s":    "不明なコマンドID %s への応答を破棄しました",
		"Discarding frame for request %d with no waiter": "待機者のないリクエスト %d のフレームを破棄しました",

		// Export
		"Export started: %d frames at %.2f fps to %s":                         "エクスポート開始: %d フレーム, %.2f fps, 出力先 %s",
		"Export progress: %d/%d frames":                                      "エクスポート中 %d/%d フレーム",
		"Export finished: %d frames, %d missing, %d bytes":                   "エクスポート完了: %d フレーム（欠落 %d）, %d バイト",
		"Clip %s frame at %.3fs unavailable, substituting placeholder: %s":   "クリップ %s の %.3f 秒のフレームを取得できません。プレースホルダで代替します: %s",
		"Failed to cancel encode session: %s":                                "エンコードセッションの中止に失敗しました: %s",
		"Failed to save placeholder dump: %s":                                "プレースホルダの保存に失敗しました: %s",
		"Muxing: %.0f%%":                                                     "多重化中: %.0f%%",

		// Diagnostics
		"Failed to save diagnostics: %s": "診断情報の保存に失敗しました: %s",
	})
}
