/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package esformat

func IsTitleType(titleID uint64, tt TitleType) bool {
	return uint32(titleID>>32) == uint32(tt)
}

func IsDiscTitle(titleID uint64) bool {
	return IsTitleType(titleID, TitleGame) || IsTitleType(titleID, TitleGameWithChannel)
}

func IsChannel(titleID uint64) bool {
	return IsTitleType(titleID, TitleChannel) ||
		IsTitleType(titleID, TitleSystemChannel) ||
		IsTitleType(titleID, TitleGameWithChannel)
}

// IsProtectedSystemTitle reports whether a title may never be deleted:
// system titles up to and including 00000001-00000101.
func IsProtectedSystemTitle(titleID uint64) bool {
	return IsTitleType(titleID, TitleSystem) && uint32(titleID) <= 0x101
}
