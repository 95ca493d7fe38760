/*
 * Copyright (c) "Neo4j"
 * Neo4j Sweden AB [https://neo4j.com]
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package neobolt

import (
	"context"

	bm "github.com/neo4j-drivers/neobolt/neobolt/bookmarks"
)

// sessionBookmarks tracks the session's own bookmark set and forwards
// updates to the shared manager when one is configured.
type sessionBookmarks struct {
	bookmarkManager bm.BookmarkManager
	bookmarks       bm.Bookmarks
}

func newSessionBookmarks(manager bm.BookmarkManager, bookmarks bm.Bookmarks) *sessionBookmarks {
	return &sessionBookmarks{
		bookmarkManager: manager,
		bookmarks:       cleanupBookmarks(bookmarks),
	}
}

func (sb *sessionBookmarks) currentBookmarks() bm.Bookmarks {
	return sb.bookmarks
}

func (sb *sessionBookmarks) lastBookmark() string {
	count := len(sb.bookmarks)
	if count == 0 {
		return ""
	}
	return sb.bookmarks[count-1]
}

// replaceBookmarks installs the new bookmark of a completed statement,
// replacing the set that was sent with it.
func (sb *sessionBookmarks) replaceBookmarks(ctx context.Context, sent bm.Bookmarks, newBookmark string) error {
	if len(newBookmark) == 0 {
		return nil
	}
	if sb.bookmarkManager != nil {
		if err := sb.bookmarkManager.UpdateBookmarks(ctx, sent, []string{newBookmark}); err != nil {
			return err
		}
	}
	sb.replaceSessionBookmarks(newBookmark)
	return nil
}

func (sb *sessionBookmarks) replaceSessionBookmarks(newBookmark string) {
	if len(newBookmark) == 0 {
		return
	}
	sb.bookmarks = bm.Bookmarks{newBookmark}
}

// getBookmarks returns the manager's set unioned with the session's
// own.
func (sb *sessionBookmarks) getBookmarks(ctx context.Context) (bm.Bookmarks, error) {
	var managed bm.Bookmarks
	if sb.bookmarkManager != nil {
		var err error
		if managed, err = sb.bookmarkManager.GetBookmarks(ctx); err != nil {
			return nil, err
		}
	}
	return bm.CombineBookmarks(managed, sb.bookmarks), nil
}

func cleanupBookmarks(bookmarks bm.Bookmarks) bm.Bookmarks {
	result := make(bm.Bookmarks, 0, len(bookmarks))
	for _, bookmark := range bookmarks {
		if bookmark == "" {
			continue
		}
		result = append(result, bookmark)
	}
	return result
}
