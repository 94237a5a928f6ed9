package source

import "errors"

var (
	// ErrConfiguration：根目录未配置或不可访问；数据源仍可打开但不输出要素
	ErrConfiguration = errors.New("cdb configuration error")
	// ErrResourceUnavailable：无法建立有效的要素剖面，初始化失败
	ErrResourceUnavailable = errors.New("cdb feature profile unavailable")
	ErrNotFound            = errors.New("cdb tile not found")
	// ErrInvalid：模型引用看似可解析但磁盘校验失败
	ErrInvalid = errors.New("cdb model reference invalid")
)
