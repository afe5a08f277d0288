package redis

import "log/slog"

// traceLevel gates frame-by-frame command/reply logging below Debug.
// Session, Pipeline and PubSub log every call and reply at this level;
// a default slog.Handler drops those records, and a caller opts in by
// lowering their handler's level threshold to -8 or below.
var traceLevel = slog.Level(-8)
