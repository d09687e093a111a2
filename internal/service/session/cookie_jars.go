package session

import (
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// cookieJars 每个浏览器会话独立的后端 cookie 存储
type cookieJars struct {
	mu   sync.Mutex
	jars map[string]*jarEntry
}

type jarEntry struct {
	jar      http.CookieJar
	lastSeen time.Time
}

func newCookieJars() *cookieJars {
	return &cookieJars{jars: make(map[string]*jarEntry)}
}

// get 返回会话的 cookie 存储，不存在时创建
func (p *cookieJars) get(id string) http.CookieJar {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.jars[id]
	if !ok {
		jar, err := cookiejar.New(nil)
		if err != nil {
			klog.Warningf("[session.cookieJars] 创建 cookie 存储失败: sessionID=%s, error=%v", id, err)
			return nil
		}
		entry = &jarEntry{jar: jar}
		p.jars[id] = entry
	}
	entry.lastSeen = time.Now()
	return entry.jar
}

// Prune 删除 cutoff 之前就不再使用的存储
func (p *cookieJars) Prune(cutoff time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	for id, entry := range p.jars {
		if entry.lastSeen.Before(cutoff) {
			delete(p.jars, id)
			removed++
		}
	}
	return removed
}
