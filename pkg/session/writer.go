package session

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WriterBufferSize 写入器缓冲区大小
// 设置为200以应对TTS流式输出的短时激增（64ms/帧 × 200 ≈ 13秒缓冲）
const WriterBufferSize = 200

type outFrame struct {
	binary bool
	data   []byte
}

// Writer 单连接下行写入器。
// 文本与二进制共用一条队列，保证 tts_start、PCM 帧、text、tts_end 按入队顺序到达设备。
type Writer struct {
	conn   *websocket.Conn
	logger *zap.Logger
	frames chan outFrame
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWriter create writer and start its write loop
func NewWriter(ctx context.Context, conn *websocket.Conn, logger *zap.Logger) *Writer {
	ctx, cancel := context.WithCancel(ctx)
	w := &Writer{
		conn:   conn,
		logger: logger,
		frames: make(chan outFrame, WriterBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	w.wg.Add(1)
	go w.writeLoop()
	return w
}

func (w *Writer) writeLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case frame := <-w.frames:
			msgType := websocket.TextMessage
			if frame.binary {
				msgType = websocket.BinaryMessage
			}
			if err := w.conn.WriteMessage(msgType, frame.data); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					w.logger.Debug("websocket closed, stopping writer", zap.Error(err))
				} else {
					w.logger.Error("failed to write websocket message", zap.Error(err))
				}
				w.cancel()
				return
			}
		}
	}
}

func (w *Writer) enqueue(frame outFrame) error {
	// 阻塞式入队提供背压，不丢帧
	select {
	case <-w.ctx.Done():
		return w.ctx.Err()
	case w.frames <- frame:
		return nil
	}
}

// WriteText 入队一条文本帧
func (w *Writer) WriteText(data []byte) error {
	return w.enqueue(outFrame{binary: false, data: data})
}

// WriteBinary 入队一条二进制帧
func (w *Writer) WriteBinary(data []byte) error {
	return w.enqueue(outFrame{binary: true, data: data})
}

// Close 停止写入循环并关闭底层连接
func (w *Writer) Close() error {
	w.cancel()
	w.wg.Wait()
	return w.conn.Close()
}
