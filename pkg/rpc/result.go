package rpc

// Result はハンドラの処理結果。成功値か障害のどちらか一方だけを持つ。
// ゼロ値は値がnullの成功を表す。
type Result struct {
	value any
	fault *Fault
}

// Ok は成功の結果を生成する。valueはJSONとしてそのまま返信される。
func Ok(value any) Result {
	return Result{value: value}
}

// Err は失敗の結果を生成する。障害はエラーエンベロープとして返信される。
func Err(f *Fault) Result {
	return Result{fault: f}
}

// From は (値, エラー) の組を Result に変換する。
// Fault を含まないエラーはmessageを汎用メッセージとする内部障害になる。
func From(value any, err error, message string) Result {
	if err != nil {
		return Err(AsFault(err, message))
	}
	return Ok(value)
}

// IsOk は成功の結果であればtrueを返す。
func (r Result) IsOk() bool {
	return r.fault == nil
}

// Value は成功値を返す。失敗の結果ではnilを返す。
func (r Result) Value() any {
	return r.value
}

// Fault は障害を返す。成功の結果ではnilを返す。
func (r Result) Fault() *Fault {
	return r.fault
}
